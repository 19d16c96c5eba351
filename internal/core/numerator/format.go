package numerator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format creates the invoice number for seq issued at period.
func Format(cfg Config, period time.Time, seq int64) string {
	var b strings.Builder
	if cfg.Prefix != "" {
		b.WriteString(cfg.Prefix)
		b.WriteByte('-')
	}
	if cfg.IncludeDate {
		b.WriteString(period.Format("20060102"))
		b.WriteByte('-')
	}
	fmt.Fprintf(&b, "%0*d", cfg.padWidth(), seq)
	return b.String()
}

// ParseSequence extracts the trailing numeric run of an invoice number.
// Numbers issued under another prefix or date format still parse, since only
// the suffix carries the sequence. Returns false if there is no trailing digit.
func ParseSequence(invoiceNumber string) (int64, bool) {
	s := strings.TrimSpace(invoiceNumber)
	end := len(s)
	start := end
	for start > 0 && s[start-1] >= '0' && s[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.ParseInt(s[start:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
