package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const secretsFile = "secrets.json"

// LoadOrCreateSecret returns the secret stored under name in stateDir,
// generating and persisting a new one on first use. Persistent resources keep
// their data across sessions, so their credentials must not change either.
func LoadOrCreateSecret(stateDir, name string) (string, error) {
	path := filepath.Join(stateDir, secretsFile)

	secrets := make(map[string]string)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &secrets); err != nil {
			return "", fmt.Errorf("failed to parse secrets file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return "", fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}

	if v, ok := secrets[name]; ok && v != "" {
		return v, nil
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secrets[name] = hex.EncodeToString(buf)

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create state dir %s: %w", stateDir, err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", fmt.Errorf("failed to write secrets file %s: %w", path, err)
	}
	return secrets[name], nil
}
