package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_FiltersByLevel(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log, err := New("warn", "text", &buf)
	req.NoError(err)

	log.Info("hidden")
	log.Warn("shown", "channel", "dm:1:2")

	req.NotContains(buf.String(), "hidden")
	req.Contains(buf.String(), "shown")
	req.Contains(buf.String(), "channel=dm:1:2")
}

func TestNew_JSON(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log, err := New("debug", "json", &buf)
	req.NoError(err)
	log.Debug("hello")
	req.Contains(buf.String(), `"msg":"hello"`)
}

func TestNew_RejectsUnknown(t *testing.T) {
	_, err := New("loud", "text", &bytes.Buffer{})
	require.Error(t, err)

	_, err = New("info", "xml", &bytes.Buffer{})
	require.Error(t, err)
}

func TestOpen_File(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "gateway.log")

	log, closeFn, err := Open("info", "text", path)
	req.NoError(err)
	log.Info("written")
	req.NoError(closeFn())

	b, err := os.ReadFile(path)
	req.NoError(err)
	req.Contains(string(b), "written")
}
