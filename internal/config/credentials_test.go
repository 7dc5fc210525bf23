package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialFile_SaveLoad(t *testing.T) {
	f := CredentialFile{Path: filepath.Join(t.TempDir(), ".env")}
	want := Credentials{ServerURL: "https://till.example.com", Tenant: "club", APIKey: "k3y with spaces"}

	require.NoError(t, f.Save(want))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info, err := os.Stat(f.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCredentialFile_SaveKeepsOtherKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".env", "HAS_RELAY=true\nAPI_KEY=old\n")
	f := CredentialFile{Path: path}

	require.NoError(t, f.Save(Credentials{ServerURL: "https://a", Tenant: "t", APIKey: "new"}))

	values, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, "true", values[EnvHasRelay])
	assert.Equal(t, "new", values[EnvAPIKey])
}

func TestCredentialFile_Missing(t *testing.T) {
	f := CredentialFile{Path: filepath.Join(t.TempDir(), ".env")}

	creds, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, creds)
}

func TestCredentialFile_Remove(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".env", "API_KEY=secret\n")
	f := CredentialFile{Path: path}

	require.NoError(t, f.Remove())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	assert.NoError(t, f.Remove())
}

func TestFindSetupFile(t *testing.T) {
	dir := t.TempDir()
	incomplete := writeFile(t, dir, "incomplete.json", `{"api_url":"https://a","tenant_slug":"club"}`)
	broken := writeFile(t, dir, "broken.json", `{not json`)
	good := writeFile(t, dir, "good.json", `{"api_url":" https://till.example.com/ ","tenant_slug":"club","api_key":"secret"}`)
	absent := filepath.Join(dir, "absent.json")

	creds, path, found := FindSetupFile([]string{absent, broken, incomplete, good})
	require.True(t, found)
	assert.Equal(t, good, path)
	assert.Equal(t, Credentials{ServerURL: "https://till.example.com", Tenant: "club", APIKey: "secret"}, creds)

	_, _, found = FindSetupFile([]string{absent, broken, incomplete})
	assert.False(t, found)
}
