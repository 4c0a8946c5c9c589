package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postgrab/pkg/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}
	return events
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"invalid level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("shown")
	l.Error("shown too")

	events := decodeLines(t, &buf)
	require.Len(t, events, 2)
	assert.Equal(t, "warn", events[0]["level"])
	assert.Equal(t, "shown", events[0]["message"])
	assert.Equal(t, "postgrab", events[0]["app"])
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "debug"}, &buf)
	require.NoError(t, err)

	base := l.WithField("run_id", "abc")
	worker := base.WithFields(map[string]interface{}{"worker": 2})
	worker.WithError(errors.New("boom")).InfoWithFields("post failed", map[string]interface{}{"post": "42"})
	base.Info("parent untouched")

	events := decodeLines(t, &buf)
	require.Len(t, events, 2)
	assert.Equal(t, "abc", events[0]["run_id"])
	assert.Equal(t, float64(2), events[0]["worker"])
	assert.Equal(t, "boom", events[0]["error"])
	assert.Equal(t, "42", events[0]["post"])

	assert.Equal(t, "abc", events[1]["run_id"])
	assert.NotContains(t, events[1], "worker")
	assert.NotContains(t, events[1], "error")
}

func TestWithNilError(t *testing.T) {
	l := NewNopLogger()
	assert.Same(t, l, l.WithError(nil))
}

func TestGlobalLogger(t *testing.T) {
	previous := globalLogger
	t.Cleanup(func() { globalLogger = previous })

	globalLogger = nil
	assert.NotNil(t, GetLogger())

	tl := NewTestLogger()
	SetLogger(tl)
	GetLogger().Info("through global")
	assert.True(t, tl.HasMessage("through global"))
}

func TestTestLoggerCapturesFieldsAndErrors(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("post", "7").WithError(errors.New("gone"))
	child.WarnWithFields("skipped", map[string]interface{}{"file": "a.jpg"})
	tl.Error("plain")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "7", msgs[0].Fields["post"])
	assert.Equal(t, "a.jpg", msgs[0].Fields["file"])
	assert.EqualError(t, msgs[0].Error, "gone")
	assert.True(t, tl.HasError())
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}
