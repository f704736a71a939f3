package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(Options{Level: "verbose"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aftersales.log")

	l, err := New(Options{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("售后单已审核", zap.Uint("case_id", 12), zap.String("action", "approve"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "售后单已审核", entry["msg"])
	assert.Equal(t, float64(12), entry["case_id"])
	assert.Equal(t, "approve", entry["action"])
}
