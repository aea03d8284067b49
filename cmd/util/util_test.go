package util

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, int64(7), ParseValue("7"))
	assert.Equal(t, 2.5, ParseValue("2.5"))
	assert.Equal(t, "7", ParseValue(`"7"`))
	assert.Equal(t, true, ParseValue("true"))
	assert.Equal(t, "plain words", ParseValue("plain words"))
}

func TestNewBackend(t *testing.T) {
	c := &Config{Backend: "memory"}
	b, err := NewBackend(c)
	require.NoError(t, err)
	assert.NotNil(t, b)

	c = &Config{Backend: "bolt", DataDir: t.TempDir(), Codec: "json", LockTimeoutSec: 1}
	b, err = NewBackend(c)
	require.NoError(t, err)
	assert.NotNil(t, b)

	c.Codec = "xml"
	_, err = NewBackend(c)
	assert.Error(t, err)

	_, err = NewBackend(&Config{Backend: "redis"})
	assert.Error(t, err)
}

func TestNewMirrorLoadsSchema(t *testing.T) {
	path := t.TempDir() + "/schema.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
version: 3
collections:
  users:
    key: id
    unique: [email]
`), 0o644))

	m, err := NewMirror(&Config{Store: "s", Backend: "memory", SchemaFile: path, StoreVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, "s", m.Name())

	c := &Config{Store: "s", Backend: "memory", SchemaFile: path + ".missing"}
	_, err = NewMirror(c)
	assert.Error(t, err)
}

func TestOpenMirror(t *testing.T) {
	m, err := OpenMirror(context.Background(), &Config{Store: "s", Backend: "memory", StoreVersion: 1, SyncTimeoutSec: 5})
	require.NoError(t, err)
	defer m.Close()
	assert.Empty(t, m.Collections())
}

func TestConfigString(t *testing.T) {
	c := &Config{Store: "shop", Backend: "bolt", DataDir: "/tmp/d", Codec: "binary", StoreVersion: 2, LogLevel: "info"}
	out := c.String()
	assert.Contains(t, out, "STORE")
	assert.Contains(t, out, "shop")
	assert.Contains(t, out, "/tmp/d")
	assert.Contains(t, out, "(none)")

	c.Backend = "memory"
	assert.NotContains(t, c.String(), "/tmp/d")
}

func TestInitLoggers(t *testing.T) {
	require.NoError(t, InitLoggers("debug"))
	// repeated calls only change the level
	assert.NotPanics(t, func() {
		require.NoError(t, InitLoggers("WARN"))
		require.NoError(t, InitLoggers("error"))
	})
	assert.Error(t, InitLoggers("loud"))
}
