package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("federation", "test")
	l.SetOutput(&buf)
	l.SetLevel(LevelWarn)

	l.Info("source %s fetched", "prod_pg.users")
	l.Warn("source %s truncated", "prod_pg.users")

	out := buf.String()
	assert.NotContains(t, out, "fetched")
	assert.Contains(t, out, "source prod_pg.users truncated")
	assert.Contains(t, out, "WARN")
}

func TestLoggerFieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	l := New("federation", "test")
	l.SetOutput(&buf)

	l.WithFields(map[string]string{"table": "users", "alias": "prod_pg"}).Info("fetched")

	assert.Contains(t, buf.String(), "fetched alias=prod_pg table=users")
}

func TestLoggerSubscribers(t *testing.T) {
	l := New("federation", "test")
	l.DisableConsoleOutput()
	ch := l.Subscribe()

	l.Error("boom %d", 1)

	select {
	case entry := <-ch:
		assert.Equal(t, "ERROR", entry.Level)
		assert.Equal(t, "boom 1", entry.Message)
	default:
		require.Fail(t, "expected a log entry")
	}

	l.Unsubscribe(ch)
	l.Error("after")
	_, open := <-ch
	assert.False(t, open)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}
