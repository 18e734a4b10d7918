package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
)

func TestParseScanCommand(t *testing.T) {
	cmd, err := ParseScanCommand("SCAN 0 MATCH users:* COUNT 500")
	require.NoError(t, err)
	assert.Equal(t, &ScanCommand{Cursor: 0, Match: "users:*", Count: 500}, cmd)
	assert.Equal(t, "users:", cmd.keyPrefix())

	cmd, err = ParseScanCommand("scan 0")
	require.NoError(t, err)
	assert.Equal(t, "*", cmd.Match)
	assert.Equal(t, "", cmd.keyPrefix())

	_, err = ParseScanCommand("GET x")
	assert.ErrorIs(t, err, adapter.ErrOperationNotSupported)

	for _, bad := range []string{"", "SCAN", "SCAN x", "SCAN 0 MATCH", "SCAN 0 COUNT -1", "SCAN 0 TYPE hash"} {
		_, err := ParseScanCommand(bad)
		assert.ErrorIs(t, err, adapter.ErrInvalidQuery, bad)
	}
}

func TestAssembleResult(t *testing.T) {
	res := assembleResult("sessions:", []keyEntry{
		{key: "sessions:1", hash: map[string]string{"user_id": "7", "device": "ios"}},
		{key: "sessions:2", hash: map[string]string{"user_id": "9", "ttl": "30"}},
		{key: "sessions:3", value: "raw"},
	})

	assert.Equal(t, []string{"key", "id", "device", "user_id", "ttl", "value"}, res.ColumnNames())
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []interface{}{"sessions:1", "1", "ios", "7", nil, nil}, res.Rows[0])
	assert.Equal(t, []interface{}{"sessions:2", "2", nil, "9", "30", nil}, res.Rows[1])
	assert.Equal(t, []interface{}{"sessions:3", "3", nil, nil, nil, "raw"}, res.Rows[2])
}

func TestBuildOptions(t *testing.T) {
	opts, err := buildOptions(adapter.ConnectionConfig{Host: "cache", Port: 6379, DatabaseName: "2", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Nil(t, opts.TLSConfig)

	opts, err = buildOptions(adapter.ConnectionConfig{Host: "cache", Port: 6380, SSL: true, SSLMode: "require"})
	require.NoError(t, err)
	require.NotNil(t, opts.TLSConfig)
	assert.False(t, opts.TLSConfig.InsecureSkipVerify)

	_, err = buildOptions(adapter.ConnectionConfig{Host: "cache", Port: 6379, DatabaseName: "users"})
	assert.True(t, adapter.IsConfigurationError(err))
}
