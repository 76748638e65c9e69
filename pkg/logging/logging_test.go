package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", FormatJSON, &buf)
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("program", "greeter").Info("dispatched")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "greeter", entry["program"])
	require.Equal(t, "dispatched", entry["msg"])
}

func TestNew_Defaults(t *testing.T) {
	log, err := New("", "", nil)
	require.NoError(t, err)
	require.Equal(t, logrus.InfoLevel, log.GetLevel())
	require.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", "", nil)
	require.Error(t, err)

	_, err = New("info", "xml", nil)
	require.Error(t, err)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
	require.Equal(t, logrus.PanicLevel, log.GetLevel())
}
