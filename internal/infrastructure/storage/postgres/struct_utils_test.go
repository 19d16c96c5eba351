package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type auditColumns struct {
	CreatedAt time.Time `db:"created_at"`
	Note      string    // untagged
}

type saleHeader struct {
	auditColumns
	ID        string  `db:"id"`
	CompanyID string  `db:"company_id"`
	Customer  *string `db:"customer_id"`
	Scratch   int     `db:"-"`
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[saleHeader]()
	assert.Equal(t, []string{"created_at", "id", "company_id", "customer_id"}, cols)

	assert.Empty(t, ExtractDBColumns[int]())
}

func TestStructToMap(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	h := saleHeader{
		auditColumns: auditColumns{CreatedAt: now, Note: "ignored"},
		ID:           "s-1",
		CompanyID:    "c-1",
		Scratch:      7,
	}

	m := StructToMap(&h)
	assert.Len(t, m, 4)
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, "s-1", m["id"])
	assert.Equal(t, "c-1", m["company_id"])
	assert.Nil(t, m["customer_id"])
	assert.NotContains(t, m, "Scratch")

	assert.Nil(t, StructToMap(42))
}
