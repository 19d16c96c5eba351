// Package numerator formats and parses invoice numbers.
//
// The sequence embedded in an invoice number is company-wide and never resets;
// the date stamp is informational only.
package numerator

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "INV")
	Prefix string

	// IncludeDate adds a YYYYMMDD stamp between prefix and sequence
	IncludeDate bool

	// PadWidth is the minimum sequence width (default 6)
	PadWidth int
}

// DefaultConfig returns sensible defaults: INV-20261019-001000.
func DefaultConfig() Config {
	return Config{
		Prefix:      "INV",
		IncludeDate: true,
		PadWidth:    6,
	}
}

func (c Config) padWidth() int {
	if c.PadWidth <= 0 {
		return 6
	}
	return c.PadWidth
}
