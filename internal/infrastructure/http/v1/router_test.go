package v1

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "possync/internal/core/context"
	"possync/internal/core/types"
	"possync/internal/domain/checkout"
	"possync/internal/domain/duplicate"
	"possync/internal/domain/offline"
	"possync/internal/domain/sale"
	"possync/internal/domain/sale/saletest"
	"possync/internal/domain/sequence"
	"possync/internal/infrastructure/storage/local"
	"possync/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type staticLink struct{ online atomic.Bool }

func (l *staticLink) Online() bool { return l.online.Load() }

type api struct {
	remote *saletest.Remote
	queue  *offline.Queue
	link   *staticLink
	router *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	remote := saletest.New()
	store := local.NewMemoryStore()
	oracle := sequence.NewOracle(remote)
	day := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

	seq := sequence.NewService(sequence.NewCache(store), oracle, sequence.DefaultConfig(),
		sequence.WithClock(func() time.Time { return day }))
	queue := offline.NewQueue(store, oracle, remote, remote)
	orch := checkout.New(checkout.Deps{
		Reservations: seq,
		Duplicates:   duplicate.NewDetector(remote, duplicate.DefaultConfig(), duplicate.WithClock(remote.Now)),
		Processor:    remote,
		Assigner:     remote,
		Queue:        queue,
		Stock:        remote,
	}, checkout.Config{})

	link := &staticLink{}
	link.online.Store(true)

	return &api{
		remote: remote,
		queue:  queue,
		link:   link,
		router: NewRouter(RouterConfig{
			Terminal:     appctx.TerminalContext{CompanyID: "company-1", StoreID: "store-1", TerminalID: "T1"},
			Logger:       logger.NewNop(),
			Connectivity: link,
			Checkout:     orch,
			Queue:        queue,
			Sequence:     seq,
		}),
	}
}

func (a *api) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

const saleBody = `{
	"customerId": "C1",
	"items": [{"productId": "P1", "quantity": 2, "unitPrice": "10.00"}],
	"payments": [{"method": "cash_usd", "amount": "20.00"}]
}`

func TestSubmitSale_Created(t *testing.T) {
	a := newAPI(t)

	w, body := a.do(t, http.MethodPost, "/api/v1/sales", saleBody, "X-Cashier-ID", "cashier-9")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "completed", body["state"])
	assert.Equal(t, "INV-20261019-001000", body["invoiceNumber"])
	assert.Equal(t, false, body["queued"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	sales := a.remote.Sales()
	require.Len(t, sales, 1)
	assert.Equal(t, "company-1", sales[0].CompanyID)
}

func TestSubmitSale_DuplicateThenConfirm(t *testing.T) {
	a := newAPI(t)

	w, _ := a.do(t, http.MethodPost, "/api/v1/sales", saleBody)
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := a.do(t, http.MethodPost, "/api/v1/sales", saleBody)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "DUPLICATE_SUSPECTED", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "INV-20261019-001000", details["matched_invoice_number"])
	assert.NotNil(t, details["matched_sale"])

	confirmed := `{"confirmDuplicate": true,` + saleBody[1:]
	w, body = a.do(t, http.MethodPost, "/api/v1/sales", confirmed)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "INV-20261019-001001", body["invoiceNumber"])
}

func TestSubmitSale_QueuedWhenRemoteUnreachable(t *testing.T) {
	a := newAPI(t)
	a.remote.SubmitHook = func(sale.Request) error { return saletest.ErrUnreachable }

	w, body := a.do(t, http.MethodPost, "/api/v1/sales", saleBody)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "queued", body["state"])
	assert.Equal(t, true, body["queued"])
	assert.Equal(t, "INV-20261019-001000", body["invoiceNumber"])

	w, body = a.do(t, http.MethodGet, "/api/v1/offline-queue", "")
	require.Equal(t, http.StatusOK, w.Code)
	pending := body["pending"].([]any)
	require.Len(t, pending, 1)
	assert.Equal(t, "INV-20261019-001000", pending[0].(map[string]any)["invoiceNumber"])

	a.remote.SubmitHook = nil
	w, body = a.do(t, http.MethodPost, "/api/v1/offline-queue/drain", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, body["submitted"])
	assert.EqualValues(t, 0, body["remaining"])
	assert.Equal(t, []string{"INV-20261019-001000"}, a.remote.InvoiceNumbers())
}

func TestSubmitSale_InvalidBody(t *testing.T) {
	a := newAPI(t)

	w, body := a.do(t, http.MethodPost, "/api/v1/sales", `{"items": [], "payments": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Zero(t, a.remote.SubmitCalls)
}

func TestSubmitSale_InsufficientStock(t *testing.T) {
	a := newAPI(t)
	a.remote.SetStock("store-1", "P1", types.NewQuantity(1))

	w, body := a.do(t, http.MethodPost, "/api/v1/sales", saleBody)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])
}

func TestTerminalHeadersRequired(t *testing.T) {
	a := newAPI(t)
	a.router = NewRouter(RouterConfig{
		Logger:       logger.NewNop(),
		Connectivity: a.link,
		Queue:        a.queue,
	})

	w, body := a.do(t, http.MethodGet, "/api/v1/offline-queue", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, _ = a.do(t, http.MethodGet, "/api/v1/offline-queue", "", "X-Company-ID", "c2", "X-Store-ID", "s2")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSequenceSync(t *testing.T) {
	a := newAPI(t)
	a.remote.Seed(sale.RecordedSale{CompanyID: "company-1", StoreID: "store-1", InvoiceNumber: "INV-20261018-004200"})

	w, body := a.do(t, http.MethodPost, "/api/v1/sequence/sync", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 4200, body["lastSequence"])
	assert.Equal(t, "company-1", body["companyId"])
}

func TestHealth(t *testing.T) {
	a := newAPI(t)

	w, body := a.do(t, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "online", body["checks"].(map[string]any)["remote"])

	a.link.online.Store(false)
	require.NoError(t, a.queue.Enqueue(context.Background(), offline.PendingSaleRecord{
		InvoiceNumber: "INV-20261019-001000",
		Sequence:      1000,
		SaleRequest: sale.Request{
			CompanyID: "company-1",
			StoreID:   "store-1",
			CashierID: "cashier-1",
			Items:     []sale.LineItem{{ProductID: "P1", Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney("1")}},
			Payments:  []sale.Payment{{Method: "cash_usd", Amount: types.MustMoney("1")}},
		},
	}))

	w, body = a.do(t, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, w.Code, "an offline terminal still takes sales")
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "offline", checks["remote"])
	assert.EqualValues(t, 1, checks["offline_queue"])

	w, _ = a.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
