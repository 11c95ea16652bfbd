package transform

import (
	"fmt"
	"math"
)

// Unknown builds the sentinel used when a descriptive attribute is absent
// from the source, e.g. Unknown("brand") == "*Unknown brand".
func Unknown(what string) string {
	return "*Unknown " + what
}

// FlattenStrings recursively flattens arbitrarily nested lists of category
// labels into a flat, left-to-right ordered slice. Non-string, non-list
// leaves are rendered with fmt.Sprint.
func FlattenStrings(v []any) []string {
	out := make([]string, 0, len(v))
	return appendFlat(out, v)
}

func appendFlat(out []string, v []any) []string {
	for _, item := range v {
		switch t := item.(type) {
		case []any:
			out = appendFlat(out, t)
		case string:
			out = append(out, t)
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

// Ratio returns num/den rounded to two decimal places. A zero denominator
// yields ok=false and the caller stores NULL; no division takes place.
func Ratio(num, den float64) (v float64, ok bool) {
	if den == 0 {
		return 0, false
	}
	return math.Round(num/den*100) / 100, true
}

// CheckLen enforces a column-length limit. The reason string deliberately
// names the field so rejected rows can be triaged from the failure logs.
func CheckLen(field, value string, max int) error {
	if len(value) > max {
		return fmt.Errorf("%s too long", field)
	}
	return nil
}

// StringOr returns Sanitize(s) or the sentinel when s is empty.
func StringOr(s, sentinel string) string {
	if s == "" {
		return sentinel
	}
	return Sanitize(s)
}
