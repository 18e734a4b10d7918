package common

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NormalizeValue converts a driver value into one of the portable scalar forms
// nil, int64, float64, bool, string, []byte or time.Time. Composite values
// (maps, slices, structs) become their JSON text.
func NormalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case int64, float64, bool, string, []byte, time.Time:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	case json.RawMessage:
		return string(x)
	case driver.Valuer:
		val, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		if _, again := val.(driver.Valuer); again {
			return fmt.Sprint(val)
		}
		return NormalizeValue(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return NormalizeValue(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		return rv.Bool()
	}
	return fmt.Sprint(v)
}

func normalizeUint(u uint64) interface{} {
	if u > math.MaxInt64 {
		return strconv.FormatUint(u, 10)
	}
	return int64(u)
}

// NormalizeRow applies NormalizeValue to every value of a row in place.
func NormalizeRow(row []interface{}) []interface{} {
	for i, v := range row {
		row[i] = NormalizeValue(v)
	}
	return row
}

// InferTypeName names the type of a normalised value for schemaless sources.
func InferTypeName(v interface{}) string {
	switch v.(type) {
	case int64:
		return "int64"
	case float64:
		return "double"
	case bool:
		return "bool"
	case time.Time:
		return "timestamp"
	case []byte:
		return "binary"
	case nil:
		return ""
	default:
		return "string"
	}
}
