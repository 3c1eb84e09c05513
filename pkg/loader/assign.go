package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// ParseAssignments builds a row from column=value pairs. Integers without a
// leading zero or sign, decimals, true, false and null are typed; everything
// else stays a string, so codes like 007 and phones like +51987654321 keep
// their text.
func ParseAssignments(pairs []string) (schema.Row, error) {
	row := make(schema.Row, len(pairs))
	for _, pair := range pairs {
		column, value, ok := strings.Cut(pair, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid assignment %q, want column=value", pair)
		}
		row[column] = scalar(value)
	}
	return row, nil
}

func scalar(s string) any {
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}

	digits := strings.TrimPrefix(s, "-")
	if digits == "" || digits[0] < '0' || digits[0] > '9' {
		return s
	}
	if len(digits) > 1 && digits[0] == '0' && !strings.HasPrefix(digits, "0.") {
		return s
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	// Only plain decimals become floats; an integer too long for int64 would
	// lose digits.
	if strings.Count(digits, ".") != 1 || strings.Trim(digits, "0123456789.") != "" {
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
