package csvfile

import (
	"strconv"
	"strings"
	"time"
)

// inferTypes returns one inferred type per header based on the sampled rows.
// The vocabulary matches schema.CanonicalType: integer, number, boolean,
// date, datetime, string.
func inferTypes(headers []string, rows [][]string) []string {
	n := len(headers)
	cols := make([][]string, n)
	for _, row := range rows {
		for i := 0; i < n && i < len(row); i++ {
			cols[i] = append(cols[i], row[i])
		}
	}
	types := make([]string, n)
	for i := 0; i < n; i++ {
		types[i] = inferTypeForColumn(cols[i])
	}
	return types
}

// inferTypeForColumn guesses a type for one column. Heuristic: all non-empty
// values must satisfy a narrower type, otherwise the column widens to string.
func inferTypeForColumn(values []string) string {
	nonEmpty := nonEmptyTrimmed(values)
	if len(nonEmpty) == 0 {
		return "string"
	}
	if allMatch(nonEmpty, isInt) {
		return "integer"
	}
	if allMatch(nonEmpty, isBool) {
		return "boolean"
	}
	// Distinguish float from int to keep ints as integer.
	if allMatch(nonEmpty, isFloat) {
		return "number"
	}
	// Dates and timestamps; prefer datetime when any time component exists.
	allDate := true
	anyTime := false
	for _, v := range nonEmpty {
		ok, hasTime := parseDateOrTimestamp(v)
		if !ok {
			allDate = false
			break
		}
		if hasTime {
			anyTime = true
		}
	}
	if allDate {
		if anyTime {
			return "datetime"
		}
		return "date"
	}
	return "string"
}

func nonEmptyTrimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func allMatch(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return err == nil
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "t", "f", "yes", "no", "y", "n", "0", "1":
		return true
	}
	return false
}

// dateLayouts are tried in order; the first hit wins. Layouts carrying a
// time component report hasTime.
var dateLayouts = []struct {
	layout  string
	hasTime bool
}{
	{"2006-01-02T15:04:05Z07:00", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02T15:04:05", true},
	{"02.01.2006 15:04:05", true},
	{"2006-01-02", false},
	{"02.01.2006", false},
	{"02/01/2006", false},
	{"01/02/2006", false},
}

func parseDateOrTimestamp(s string) (ok, hasTime bool) {
	for _, dl := range dateLayouts {
		if _, err := time.Parse(dl.layout, s); err == nil {
			return true, dl.hasTime
		}
	}
	return false, false
}
