package cmd

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", t.TempDir() + "/missing.env"}, args...))
	require.NoError(t, root.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Contains(t, run(t, "version"), "reservationd dev")
	assert.Equal(t, "dev\n", run(t, "version", "--short"))
}

func TestKeys(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(run(t, "keys")), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		_, val, ok := strings.Cut(l, "=")
		require.True(t, ok)
		b, err := base64.StdEncoding.DecodeString(val)
		require.NoError(t, err)
		assert.Len(t, b, 32)
	}
}

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{
		{"server"}, {"sweep"}, {"migrate"}, {"user", "add"},
		{"reservation", "create"}, {"reservation", "get"}, {"reservation", "list"},
		{"reservation", "status"}, {"reservation", "cancel"},
	} {
		c, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], c.Name())
	}
}
