package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLoggerReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billing.log")
	l := NewIsolatedLogger(path)

	l.Info("BILLING", "cycle created", map[string]interface{}{"subscription_id": "s1"})
	l.Warn("PAYMENT", "provider slow", nil)
	l.Error("PAYMENT", "charge failed", map[string]interface{}{"error": "declined"})
	require.NoError(t, l.Sync())

	all, err := l.GetLogs(LogFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "charge failed", all[0].Message, "newest first")

	payment, err := l.GetLogs(LogFilter{Module: "PAYMENT"}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, payment, 2)

	errorsOnly, err := l.GetLogs(LogFilter{Level: "ERROR"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, errorsOnly, 1)

	found, err := l.GetLogById(errorsOnly[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "PAYMENT", found.Module)

	missing, err := l.GetLogById("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	page, err := l.GetLogs(LogFilter{}, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Info("X", "ignored", nil)
	logs, err := l.GetLogs(LogFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
