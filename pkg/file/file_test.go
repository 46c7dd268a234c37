package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFileExists(t *testing.T) {
	fs := NewFileService()
	dir := t.TempDir()

	exists, err := fs.IsFileExists(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.False(t, exists)

	path := filepath.Join(dir, "present.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	exists, err = fs.IsFileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestJsonRoundTrip(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "facilities.json")

	type facility struct {
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
	}
	in := []facility{{Name: "SF General", Lat: 37.7554}}

	require.NoError(t, fs.WriteJsonFile(path, in))

	// The temp file from the atomic write must be gone.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	var out []facility
	require.NoError(t, fs.ReadJsonFile(path, &out))
	assert.Equal(t, in, out)
}

func TestReadYamlFile(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":4000\"\nenabled: true\n"), 0o644))

	var out struct {
		Addr    string `yaml:"addr"`
		Enabled bool   `yaml:"enabled"`
	}
	require.NoError(t, fs.ReadYamlFile(path, &out))
	assert.Equal(t, ":4000", out.Addr)
	assert.True(t, out.Enabled)
}

func TestReadFileRaw_MissingFile(t *testing.T) {
	fs := NewFileService()
	_, err := fs.ReadFileRaw(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}
