package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-similarity-server/internal/domain"
)

func TestNew_Defaults(t *testing.T) {
	logger, err := New(domain.LoggingConfig{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stdout, logger.Out)
}

func TestNew_TextStderr(t *testing.T) {
	logger, err := New(domain.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stderr, logger.Out)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, err := New(domain.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		Filename: path,
		MaxSize:  1,
	})
	require.NoError(t, err)

	logger.WithField("patient_id", "P-1").Info("Comparison complete")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "Comparison complete", entry["message"])
	assert.Equal(t, "P-1", entry["patient_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.LoggingConfig
	}{
		{"level", domain.LoggingConfig{Level: "loud"}},
		{"format", domain.LoggingConfig{Format: "xml"}},
		{"output", domain.LoggingConfig{Output: "syslog"}},
		{"file without name", domain.LoggingConfig{Output: "file"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())
}
