package core

// convert.go parses the messy reality of user-provided cell values:
//   - Multiple date formats (US, EU, ISO, RFC 3339)
//   - Currency symbols and thousand separators in amounts
//   - Excel formula prefixes (="value")

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ParseDate parses a date cell. Four-digit-year layouts are tried first.
func ParseDate(field, s string) (time.Time, error) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, &ValidationError{Field: field, Message: "required field is empty"}
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t.UTC(), nil
		}
	}

	return time.Time{}, &ValidationError{Field: field, Value: s, Message: "invalid date format"}
}

// amountNoise is stripped from money cells before parsing.
var amountNoise = strings.NewReplacer("$", "", "€", "", "£", "", "₹", "", ",", "", " ", "")

// ParseAmount parses a money cell such as "$1,234.56" or the accounting
// form "(12.00)" for negatives.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	raw := s
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, &ValidationError{Field: field, Message: "required field is empty"}
	}

	sign := ""
	if inner, ok := strings.CutPrefix(s, "("); ok && strings.HasSuffix(inner, ")") {
		sign, s = "-", strings.TrimSuffix(inner, ")")
	}
	s = sign + amountNoise.Replace(s)

	if !numericRegex.MatchString(s) {
		return decimal.Zero, &ValidationError{Field: field, Value: raw, Message: "invalid number format"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Value: raw, Message: "invalid number format"}
	}
	return d, nil
}

// ParseQuantity parses a whole-number cell. "3.0" is accepted, "3.5" is not.
func ParseQuantity(field, s string) (int, error) {
	raw := s
	s = strings.ReplaceAll(CleanCell(s), ",", "")
	if s == "" {
		return 0, &ValidationError{Field: field, Message: "required field is empty"}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, &ValidationError{Field: field, Value: raw, Message: "invalid number format: expected a whole number"}
	}
	if !d.BigInt().IsInt64() {
		return 0, &ValidationError{Field: field, Value: raw, Message: fmt.Sprintf("invalid number: %s out of range", s)}
	}
	return int(d.IntPart()), nil
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}
