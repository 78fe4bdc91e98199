package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in     string
		limit  int64
		window time.Duration
	}{
		{"300/10s", 300, 10 * time.Second},
		{"5/1m", 5, time.Minute},
		{" 1000/2h ", 1000, 2 * time.Hour},
	}
	for _, tt := range tests {
		rl, err := ParseRate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.limit, rl.Limit, tt.in)
		assert.Equal(t, tt.window, rl.Window, tt.in)
	}

	for _, bad := range []string{"", "300", "x/10s", "300/s", "300/10d", "0/10s", "10/0s", "1/2/3"} {
		_, err := ParseRate(bad)
		assert.Error(t, err, bad)
	}
}

func TestSignature(t *testing.T) {
	body := []byte("payload")
	sig := Sign("secret", body)
	assert.Len(t, sig, 128)

	assert.NoError(t, VerifySignature("secret", body, sig))
	assert.ErrorIs(t, VerifySignature("other", body, sig), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature("secret", []byte("tampered"), sig), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature("secret", body, "zz"), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature("secret", body, ""), ErrMissingSignature)
}

func TestNewLogger_WritesPerLevelFiles(t *testing.T) {
	dir := t.TempDir()
	lg, err := NewLogger(dir, "debug")
	require.NoError(t, err)

	lg.Debug("dbg-line")
	lg.Info("info-line")
	lg.Warn("warn-line")
	lg.Error("err-line")
	_ = lg.Sync()

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(data)
	}
	assert.Contains(t, read("debug.log"), "dbg-line")
	assert.NotContains(t, read("debug.log"), "info-line")
	assert.Contains(t, read("info.log"), "info-line")
	assert.Contains(t, read("info.log"), "warn-line")
	assert.Contains(t, read("error.log"), "err-line")
	assert.NotContains(t, read("error.log"), "warn-line")
}

func TestNewLogger_LevelFilter(t *testing.T) {
	dir := t.TempDir()
	lg, err := NewLogger(dir, "warn")
	require.NoError(t, err)
	lg.Info("quiet")
	lg.Warn("loud")
	_ = lg.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")

	_, err = NewLogger("", "verbose")
	assert.Error(t, err)
}
