package mongodb

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/redbco/redb-federation/services/anchor/internal/database/common"
)

// convertValue maps BSON values onto the portable scalar forms. Embedded
// documents and arrays become JSON text.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.D, bson.M, bson.A, []interface{}, map[string]interface{}:
		b, err := json.Marshal(toNative(val))
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return scalar(v)
	}
}

func scalar(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC()
	case bson.Decimal128:
		return val.String()
	case bson.Binary:
		if (val.Subtype == 0x04 || val.Subtype == 0x03) && len(val.Data) == 16 {
			return uuid.UUID(val.Data).String()
		}
		return val.Data
	default:
		return common.NormalizeValue(v)
	}
}

func toNative(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.D:
		m := make(map[string]interface{}, len(val))
		for _, elem := range val {
			m[elem.Key] = toNative(elem.Value)
		}
		return m
	case bson.M:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[k] = toNative(item)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[k] = toNative(item)
		}
		return m
	case bson.A:
		arr := make([]interface{}, len(val))
		for i, item := range val {
			arr[i] = toNative(item)
		}
		return arr
	case []interface{}:
		arr := make([]interface{}, len(val))
		for i, item := range val {
			arr[i] = toNative(item)
		}
		return arr
	default:
		return scalar(v)
	}
}
