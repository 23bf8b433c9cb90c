package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("POOLHOST_TEST_SECRET", "  from-env  ")
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	value, err := NewSource("POOLHOST_TEST_SECRET", path).Get()
	require.NoError(t, err)
	require.Equal(t, "from-env", value)
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("POOLHOST_TEST_SECRET", " ")
	_, err := NewSource("POOLHOST_TEST_SECRET", "").Get()
	require.Error(t, err)
}

func TestSourceReadsFileAndCaches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	src := NewSource("", path)
	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "from-file", value)

	require.NoError(t, os.Remove(path))
	value, err = src.Get()
	require.NoError(t, err)
	require.Equal(t, "from-file", value)
}

func TestSourceEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))
	_, err := NewSource("", path).Get()
	require.Error(t, err)
}
