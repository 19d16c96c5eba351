// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// TerminalContext identifies the point-of-sale terminal a request comes from.
// CompanyID is the tenant; invoice sequences are scoped to it, not to the store.
type TerminalContext struct {
	CompanyID  string
	StoreID    string
	TerminalID string
	CashierID  string
}

type terminalContextKey struct{}

// WithTerminal adds TerminalContext to context.
func WithTerminal(ctx context.Context, t *TerminalContext) context.Context {
	return context.WithValue(ctx, terminalContextKey{}, t)
}

// GetTerminal returns TerminalContext from context.
func GetTerminal(ctx context.Context) *TerminalContext {
	if v, ok := ctx.Value(terminalContextKey{}).(*TerminalContext); ok {
		return v
	}
	return nil
}

// GetCompanyID returns company ID from context or empty string.
func GetCompanyID(ctx context.Context) string {
	if t := GetTerminal(ctx); t != nil {
		return t.CompanyID
	}
	return ""
}

// GetStoreID returns store ID from context or empty string.
func GetStoreID(ctx context.Context) string {
	if t := GetTerminal(ctx); t != nil {
		return t.StoreID
	}
	return ""
}

// GetCashierID returns cashier ID from context or empty string.
func GetCashierID(ctx context.Context) string {
	if t := GetTerminal(ctx); t != nil {
		return t.CashierID
	}
	return ""
}
