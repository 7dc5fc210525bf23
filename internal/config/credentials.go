package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Credential record keys.
const (
	EnvServerURL = "SERVER_URL"
	EnvTenant    = "TENANT_SLUG"
	EnvAPIKey    = "API_KEY"
)

// Credentials identify the device to the central authority.
type Credentials struct {
	ServerURL string `json:"api_url"`
	Tenant    string `json:"tenant_slug"`
	APIKey    string `json:"api_key"`
}

func credentialsFrom(lookup func(string) (string, bool)) Credentials {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	return Credentials{
		ServerURL: strings.TrimRight(get(EnvServerURL), "/"),
		Tenant:    get(EnvTenant),
		APIKey:    get(EnvAPIKey),
	}
}

// CredentialFile is the persisted .env credential record.
type CredentialFile struct {
	Path string
}

// Read returns every key in the record. A missing file yields an empty map.
func (f CredentialFile) Read() (map[string]string, error) {
	values, err := godotenv.Read(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", f.Path, err)
	}
	return values, nil
}

// Load returns the credentials stored in the record.
func (f CredentialFile) Load() (Credentials, error) {
	values, err := f.Read()
	if err != nil {
		return Credentials{}, err
	}
	return credentialsFrom(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}), nil
}

// Save writes the credentials, keeping any other keys already in the
// record (e.g. relay settings). The file is readable by the owner only.
func (f CredentialFile) Save(c Credentials) error {
	values, err := f.Read()
	if err != nil {
		return err
	}
	values[EnvServerURL] = c.ServerURL
	values[EnvTenant] = c.Tenant
	values[EnvAPIKey] = c.APIKey

	if err := godotenv.Write(values, f.Path); err != nil {
		return fmt.Errorf("write credentials %s: %w", f.Path, err)
	}
	if err := os.Chmod(f.Path, 0o600); err != nil {
		return fmt.Errorf("write credentials %s: %w", f.Path, err)
	}
	return nil
}

// Remove deletes the record. Removing a missing record is not an error.
func (f CredentialFile) Remove() error {
	err := os.Remove(f.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials %s: %w", f.Path, err)
	}
	return nil
}

// DefaultSetupPaths are searched for a setup file on removable media.
var DefaultSetupPaths = []string{
	"/boot/tillsync/config.json",
	"/boot/firmware/tillsync/config.json",
	"/media/pi/TILLSYNC/config.json",
	"/media/pi/BOOT/tillsync/config.json",
	"/mnt/usb/config.json",
}

// FindSetupFile returns the credentials from the first readable setup file
// in paths that carries an api_url, tenant_slug and api_key. found is false
// if none qualifies. Unreadable or incomplete files are skipped.
func FindSetupFile(paths []string) (creds Credentials, path string, found bool) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var c Credentials
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
		c.Tenant = strings.TrimSpace(c.Tenant)
		c.APIKey = strings.TrimSpace(c.APIKey)
		if c.ServerURL == "" || c.Tenant == "" || c.APIKey == "" {
			continue
		}
		return c, p, true
	}
	return Credentials{}, "", false
}
