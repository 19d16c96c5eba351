package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"possync/internal/core/apperror"
	appctx "possync/internal/core/context"
)

const (
	HeaderCompanyID  = "X-Company-ID"
	HeaderStoreID    = "X-Store-ID"
	HeaderTerminalID = "X-Terminal-ID"
	HeaderCashierID  = "X-Cashier-ID"
)

// Terminal resolves which company, store, terminal and cashier a request acts
// for. Headers override the terminal's configured identity; company and store
// must be known one way or the other.
func Terminal(defaults appctx.TerminalContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := defaults
		override(&t.CompanyID, c.GetHeader(HeaderCompanyID))
		override(&t.StoreID, c.GetHeader(HeaderStoreID))
		override(&t.TerminalID, c.GetHeader(HeaderTerminalID))
		override(&t.CashierID, c.GetHeader(HeaderCashierID))

		if t.CompanyID == "" || t.StoreID == "" {
			_ = c.Error(apperror.NewValidation("company and store are required").
				WithDetail("headers", []string{HeaderCompanyID, HeaderStoreID}))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(appctx.WithTerminal(c.Request.Context(), &t))
		c.Set("company_id", t.CompanyID)
		c.Next()
	}
}

func override(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
