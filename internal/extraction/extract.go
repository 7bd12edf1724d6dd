package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateLayout is the normalized output format for receipt dates (DD/MM/YY).
const DateLayout = "02/01/06"

// UnknownVendor is returned when no plausible vendor line exists.
const UnknownVendor = "Unknown Vendor"

// vendorBlacklist holds generic receipt-header phrases that are never the
// vendor name. Matching is case-insensitive containment.
var vendorBlacklist = []string{"RECEIPT", "TAX INVOICE", "INVOICE", "WELCOME"}

var (
	dateKeywordRe = regexp.MustCompile(`(?i)Date[:\s]+([A-Za-z0-9/\s,.-]+)`)
	numericDateRe = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)

	totalPaidRe = regexp.MustCompile(`(?i)Total Paid\s*[^0-9]*([0-9,.]+)`)
	totalRe     = regexp.MustCompile(`(?i)Total\s*[^0-9]*([0-9,.]+)`)
	amountRe    = regexp.MustCompile(`[0-9]+[.,][0-9]{2}`)
)

// ExtractVendor returns the first non-blank line that is not generic receipt
// boilerplate. Vendor names are conventionally the first printed line, but
// headers like "TAX INVOICE" have to be skipped to reach the real name. The
// line is returned trimmed but otherwise verbatim.
func ExtractVendor(lines []string) string {
	for _, line := range lines {
		clean := strings.TrimSpace(line)
		if clean == "" {
			continue
		}
		if containsBlacklisted(clean) {
			continue
		}
		return clean
	}
	return UnknownVendor
}

func containsBlacklisted(line string) bool {
	upper := strings.ToUpper(line)
	for _, word := range vendorBlacklist {
		if strings.Contains(upper, word) {
			return true
		}
	}
	return false
}

// dateAttempt tries one strategy for locating a date in the text.
// A false return means the strategy produced nothing and the next one runs.
type dateAttempt func(text string) (time.Time, bool)

var dateAttempts = []dateAttempt{dateAfterKeyword, numericDateScan}

// ExtractDate finds a date in the raw text and normalizes it to DD/MM/YY.
// Strategies run in priority order; when none succeeds the current date is
// returned as a better-than-nothing default rather than an error.
func ExtractDate(text string, now time.Time) string {
	for _, attempt := range dateAttempts {
		if t, ok := attempt(text); ok {
			return t.Format(DateLayout)
		}
	}
	return now.Format(DateLayout)
}

// dateAfterKeyword captures whatever follows the word "Date" up to the next
// line break and hands it to the natural-language parser. Handles formats
// like "Date: April 9, 2025" or "Date 09-04-2025".
func dateAfterKeyword(text string) (time.Time, bool) {
	m := dateKeywordRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	candidate, _, _ := strings.Cut(m[1], "\n")
	return parseDayFirst(strings.TrimSpace(candidate))
}

// numericDateScan falls back to the first numeric token shaped like a date
// anywhere in the text.
func numericDateScan(text string) (time.Time, bool) {
	m := numericDateRe.FindString(text)
	if m == "" {
		return time.Time{}, false
	}
	return parseDayFirst(m)
}

// parseDayFirst parses with a fixed day-first bias, so the ambiguous
// "04/09/2025" reads as 4 September. This misreads US month-first receipts,
// a known trade-off carried over deliberately.
//
// Dash separators are normalized to slashes up front: dateparse has no
// layout for "09-04-2025", while the slash form parses day-first. ISO
// dates survive the rewrite ("2025-04-09" → "2025/04/09" still parses
// year-first).
func parseDayFirst(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	s = strings.ReplaceAll(s, "-", "/")
	t, err := dateparse.ParseAny(s, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// totalAttempt tries one strategy for locating the grand total.
type totalAttempt func(text string) (float64, bool)

var totalAttempts = []totalAttempt{totalPaidAmount, totalLineAmount, maxAmount}

// ExtractTotal finds the grand total, preferring explicit labels over
// guessing. Receipts print several numbers (unit prices, subtotal, tax,
// change), so the largest unlabeled amount is only an absolute last resort.
// Returns 0.0 when nothing is recoverable.
func ExtractTotal(text string) float64 {
	for _, attempt := range totalAttempts {
		if v, ok := attempt(text); ok {
			return v
		}
	}
	return 0.0
}

// totalPaidAmount looks for "Total Paid", the strongest signal.
func totalPaidAmount(text string) (float64, bool) {
	m := totalPaidRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseAmount(m[1]), true
}

// totalLineAmount looks for "Total" that is not the tail of "Subtotal".
// Go regexps have no lookbehind, so each match is checked against the three
// bytes preceding it. A found match whose number fails to parse still ends
// the ladder with 0.0; only "no match at all" advances to the next rule.
func totalLineAmount(text string) (float64, bool) {
	for _, idx := range totalRe.FindAllStringSubmatchIndex(text, -1) {
		start := idx[0]
		if start >= 3 && strings.EqualFold(text[start-3:start], "sub") {
			continue
		}
		return parseAmount(text[idx[2]:idx[3]]), true
	}
	return 0, false
}

// maxAmount scans for every token shaped like a two-decimal money value and
// returns the largest. Commas are treated as decimal separators here, since
// unlabeled European-style amounts are common in this position.
func maxAmount(text string) (float64, bool) {
	matches := amountRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	var best float64
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
		if err != nil {
			continue
		}
		if v > best {
			best = v
		}
	}
	return best, true
}

// parseAmount strips thousands-separator commas and parses the token.
// Malformed tokens yield 0.0 rather than an error.
func parseAmount(raw string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0.0
	}
	return v
}

// SplitLines breaks raw OCR text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		t := strings.TrimSpace(l)
		if t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}
