package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vinayak0723/cryptoexchange/internal/config"
)

func TestStatic(t *testing.T) {
	tok, err := Static("abc").Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = Static("").Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestEnv(t *testing.T) {
	t.Setenv("WSFEED_TEST_TOKEN", " from-env \n")

	tok, err := Env("WSFEED_TEST_TOKEN").Token()
	require.NoError(t, err)
	assert.Equal(t, "from-env", tok)

	_, err = Env("WSFEED_TEST_TOKEN_UNSET").Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFile_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0600))

	src := File(path)
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0600))
	tok, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "second", tok)
}

func TestFile_Missing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "missing")).Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

type failing struct{ err error }

func (f failing) Token() (string, error) { return "", f.err }

func TestChain(t *testing.T) {
	tok, err := Chain(Static(""), Env("WSFEED_TEST_TOKEN_UNSET"), Static("last")).Token()
	require.NoError(t, err)
	assert.Equal(t, "last", tok)

	_, err = Chain().Token()
	assert.ErrorIs(t, err, ErrNoToken)

	errBroken := errors.New("keyring locked")
	_, err = Chain(failing{errBroken}, Static("never")).Token()
	assert.ErrorIs(t, err, errBroken)
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("file-token"), 0600))
	t.Setenv("WSFEED_TEST_TOKEN", "env-token")

	tests := []struct {
		name string
		cfg  config.AuthConfig
		want string
	}{
		{"empty", config.AuthConfig{}, ""},
		{"inline", config.AuthConfig{Token: "inline"}, "inline"},
		{"env over inline", config.AuthConfig{Token: "inline", TokenEnv: "WSFEED_TEST_TOKEN"}, "env-token"},
		{"file first", config.AuthConfig{Token: "inline", TokenEnv: "WSFEED_TEST_TOKEN", TokenFile: path}, "file-token"},
		{"missing file falls through", config.AuthConfig{Token: "inline", TokenFile: filepath.Join(dir, "nope")}, "inline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := FromConfig(tt.cfg).Token()
			require.NoError(t, err)
			assert.Equal(t, tt.want, tok)
		})
	}
}
