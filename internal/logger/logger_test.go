package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitsByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l, err := newWithWriters("info", "json", &stdout, &stderr)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("region ready")
	l.Warn("slow inference")
	_ = l.Sync()

	assert.Contains(t, stdout.String(), "region ready")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.NotContains(t, stdout.String(), "slow inference")
	assert.Contains(t, stderr.String(), "slow inference")
}

func TestSingleWriter(t *testing.T) {
	var stderr bytes.Buffer
	l, err := newWithWriters("info", "json", &stderr, &stderr)
	require.NoError(t, err)
	l.Info("region ready")
	l.Error("map failed")
	_ = l.Sync()

	out := stderr.String()
	assert.Contains(t, out, "region ready")
	assert.Contains(t, out, "map failed")
}

func TestConsoleFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l, err := newWithWriters("debug", "console", &stdout, &stderr)
	require.NoError(t, err)
	l.Debug("debug line")
	_ = l.Sync()
	assert.Contains(t, stdout.String(), "debug line")
	assert.NotContains(t, stdout.String(), "{")
}

func TestBadLevel(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)
}
