package database

import (
	"database/sql/driver"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// normalizeValue converts a driver value into something encoding/json renders
// the way clients expect.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		if len(val) == 16 && !isPrintable(val) {
			return uuid.UUID(val).String()
		}
		if isPrintable(val) {
			return string(val)
		}
		return "\\x" + hex.EncodeToString(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return nil
		}
		return normalizeValue(dv)
	default:
		return val
	}
}

// typedText converts text-protocol bytes into a number when the column type
// says it is one. Anything else becomes a string.
func typedText(raw []byte, dbType string) any {
	s := string(raw)
	switch strings.ToUpper(dbType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT":
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case "FLOAT", "DOUBLE", "REAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return normalizeValue(raw)
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			return false
		}
		if c == 0x7f {
			return false
		}
	}
	return true
}
