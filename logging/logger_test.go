package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Level(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, New("", "").Logger.Level)
	assert.Equal(t, logrus.DebugLevel, New("debug", "text").Logger.Level)
	assert.Equal(t, logrus.WarnLevel, New("warn", "text").Logger.Level)
	assert.Equal(t, logrus.ErrorLevel, New("error", "text").Logger.Level)
	assert.Equal(t, logrus.InfoLevel, New("bogus", "text").Logger.Level)
}

func TestNew_Format(t *testing.T) {
	_, ok := New("info", "json").Logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok, "expected JSON formatter")

	_, ok = New("info", "text").Logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok, "expected text formatter")
}

func TestLogger_StructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", "json")
	l.Logger.SetOutput(&buf)

	l.Info("handled message", "topic", "devices/1/status", "attempts", 2)

	var data map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "handled message", data["msg"])
	assert.Equal(t, "devices/1/status", data["topic"])
	assert.Equal(t, float64(2), data["attempts"])
}

func TestLogger_OddKeysIgnored(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", "json")
	l.Logger.SetOutput(&buf)

	l.Info("trailing key with no value", "topic")

	var data map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	_, present := data["topic"]
	assert.False(t, present)
}
