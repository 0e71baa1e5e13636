package db

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FormatValue renders a driver value for samples and reports
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case [16]byte:
		// pgx decodes uuid columns as raw bytes
		return uuid.UUID(val).String()
	case bool:
		return strconv.FormatBool(val)
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if _, again := inner.(driver.Valuer); again {
			return fmt.Sprint(inner)
		}
		return FormatValue(inner)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// ToInt64 converts the integer-like values drivers return for COUNT(*) and friends
func ToInt64(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int32:
		return int64(val), nil
	case int:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case float64:
		return int64(val), nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	case sql.NullInt64:
		return val.Int64, nil
	case nil:
		return 0, fmt.Errorf("cannot convert NULL to integer")
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

// ToBool converts boolean-like values (MySQL returns 0/1 for comparisons)
func ToBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(val)
		return b || strings.EqualFold(val, "yes")
	case []byte:
		return ToBool(string(val))
	default:
		n, err := ToInt64(v)
		return err == nil && n != 0
	}
}

// decodeJSONList parses a JSON array of names produced by array_to_json or JSON_ARRAYAGG
func decodeJSONList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	raw := FormatValue(v)
	if raw == "" || raw == "NULL" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode column list %q: %w", raw, err)
	}
	return out, nil
}
