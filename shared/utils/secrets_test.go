package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecretsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := SecretsDir
	SecretsDir = dir
	t.Cleanup(func() { SecretsDir = prev })
	return dir
}

func TestReadSecret(t *testing.T) {
	dir := withSecretsDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jwt_secret"), []byte("  s3cr3t \n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty"), []byte("   "), 0o600))

	v, err := ReadSecret("jwt_secret")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)

	_, err = ReadSecret("empty")
	assert.Error(t, err)

	_, err = ReadSecret("missing")
	assert.Error(t, err)
}

func TestReadSecretOrEnv(t *testing.T) {
	dir := withSecretsDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "from_file"), []byte("file-value"), 0o600))
	t.Setenv("FROM_FILE", "env-value")
	t.Setenv("FROM_ENV", "env-only")

	v, err := ReadSecretOrEnv("from_file", "FROM_FILE")
	require.NoError(t, err)
	assert.Equal(t, "file-value", v, "file wins over env")

	v, err = ReadSecretOrEnv("from_env", "FROM_ENV")
	require.NoError(t, err)
	assert.Equal(t, "env-only", v)

	_, err = ReadSecretOrEnv("nowhere", "NOWHERE_SET")
	assert.Error(t, err)
}
