package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLines []string
	}{
		{
			name:      "debug emits everything",
			level:     "debug",
			wantLines: []string{"DEBUG", "INFO", "WARN"},
		},
		{
			name:      "info drops debug",
			level:     "info",
			wantLines: []string{"INFO", "WARN"},
		},
		{
			name:      "warning alias drops info",
			level:     "warning",
			wantLines: []string{"WARN"},
		},
		{
			name:      "unknown level falls back to info",
			level:     "verbose",
			wantLines: []string{"INFO", "WARN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			logger, err := New(&Config{Level: tt.level, Format: "json", writer: output})
			require.NoError(t, err)

			logger.Debug("claim attempt")
			logger.Info("job completed")
			logger.Warn("retry scheduled")

			var levels []string
			decoder := json.NewDecoder(output)
			for decoder.More() {
				var entry map[string]any
				require.NoError(t, decoder.Decode(&entry))
				levels = append(levels, entry["level"].(string))
			}
			assert.Equal(t, tt.wantLines, levels)
		})
	}
}

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		check  func(t *testing.T, out string)
	}{
		{
			name:   "json carries attributes",
			config: Config{Format: "json"},
			check: func(t *testing.T, out string) {
				var entry map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &entry))
				assert.Equal(t, "job completed", entry["msg"])
				assert.Equal(t, "job-1", entry["job_id"])
				assert.NotContains(t, entry, slog.SourceKey)
			},
		},
		{
			name:   "json with source location",
			config: Config{Format: "json", EnableSource: true},
			check: func(t *testing.T, out string) {
				var entry map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &entry))
				assert.Contains(t, entry, slog.SourceKey)
			},
		},
		{
			name:   "console is the default format",
			config: Config{},
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "job completed")
				assert.Contains(t, out, "job_id=")
				assert.NotEqual(t, byte('{'), out[0])
			},
		},
		{
			name:   "unknown format falls back to json",
			config: Config{Format: "logfmt"},
			check: func(t *testing.T, out string) {
				assert.True(t, json.Valid([]byte(out)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			cfg := tt.config
			cfg.writer = output

			logger, err := New(&cfg)
			require.NoError(t, err)
			logger.Info("job completed", slog.String("job_id", "job-1"))

			require.NotEmpty(t, output.String())
			tt.check(t, output.String())
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, data []byte)
	}{
		{
			name:   "json lines",
			format: "json",
			check: func(t *testing.T, data []byte) {
				var entry map[string]any
				require.NoError(t, json.Unmarshal(data, &entry))
				assert.Equal(t, "written to file", entry["msg"])
				assert.Equal(t, "abc", entry["job_id"])
			},
		},
		{
			name:   "console without colors",
			format: "console",
			check: func(t *testing.T, data []byte) {
				assert.Contains(t, string(data), "written to file")
				assert.NotContains(t, string(data), "\x1b[")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "app.log")

			logger, err := New(&Config{Level: "info", Format: tt.format, Output: path})
			require.NoError(t, err)

			logger.Info("written to file", slog.String("job_id", "abc"))
			require.NoError(t, logger.Close())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			tt.check(t, data)
		})
	}
}

func TestNew_FileOutputInvalidPath(t *testing.T) {
	logger, err := New(&Config{
		Output: filepath.Join(t.TempDir(), "missing", "dir", "app.log"),
	})

	require.Error(t, err)
	assert.Nil(t, logger)
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	logger, err := New(&Config{Output: "stderr"})
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
}
