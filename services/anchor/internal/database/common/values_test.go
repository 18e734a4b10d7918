package common

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeValue(t *testing.T) {
	id := uuid.MustParse("6f1c2b1e-8f0a-4c7e-9a55-3f1f2d6e0b11")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 7

	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"nil", nil, nil},
		{"int32 widens", int32(42), int64(42)},
		{"uint8 widens", uint8(9), int64(9)},
		{"huge uint stays exact", uint64(1 << 63), "9223372036854775808"},
		{"float32 widens", float32(1.5), float64(1.5)},
		{"uuid bytes", [16]byte(id), id.String()},
		{"time passes", ts, ts},
		{"valuer", sql.NullString{String: "x", Valid: true}, "x"},
		{"null valuer", sql.NullInt64{}, nil},
		{"map to json", map[string]interface{}{"a": 1}, `{"a":1}`},
		{"slice to json", []string{"x", "y"}, `["x","y"]`},
		{"pointer deref", &n, int64(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeValue(tt.in))
		})
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"we""ird"`, QuoteIdentifier(`we"ird`))
	assert.Equal(t, "`order``s`", QuoteBacktick("order`s"))
	assert.Equal(t, []string{"'it''s'"}, QuoteStringSlice([]string{"it's"}))
	assert.Equal(t, "sales.public", NamespaceLabel("sales", "public"))
	assert.Equal(t, "public", NamespaceLabel("", "public"))
}

func TestInferTypeName(t *testing.T) {
	assert.Equal(t, "int64", InferTypeName(int64(1)))
	assert.Equal(t, "double", InferTypeName(2.5))
	assert.Equal(t, "string", InferTypeName("x"))
	assert.Equal(t, "timestamp", InferTypeName(time.Now()))
	assert.Equal(t, "", InferTypeName(nil))
}
