package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListener_DispatchRecoversFromPanics(t *testing.T) {
	l := &Listener{channel: InvoiceAssignedChannel, ctx: context.Background()}

	var got []string
	l.OnNotify(func(context.Context, string) { panic("boom") })
	l.OnNotify(func(_ context.Context, payload string) { got = append(got, payload) })

	assert.NotPanics(t, func() { l.dispatch("c1") })
	assert.Equal(t, []string{"c1"}, got)
}

func TestListener_StopWithoutStart(t *testing.T) {
	l := &Listener{channel: InvoiceAssignedChannel}
	assert.NotPanics(t, l.Stop)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"invoice_assigned"`, quoteIdent("invoice_assigned"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
