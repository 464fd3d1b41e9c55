package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// LoadToken reads a token saved by SaveToken. A missing file is not an error: ok is
// false and the configured credentials stay in use.
func LoadToken(path string) (tok *oauth2.Token, ok bool, err error) {
	data, err := os.ReadFile(path)

	if os.IsNotExist(err) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read token file: %w", err)
	}

	tok = &oauth2.Token{}

	if err := json.Unmarshal(data, tok); err != nil {
		return nil, false, fmt.Errorf("failed to decode token file %q: %w", path, err)
	}

	return tok, tok.RefreshToken != "", nil
}

// SaveToken stores a refreshed token so the next run can pick it up. The file is only
// readable by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")

	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return os.Rename(tmp, path)
}

// WithToken returns the credentials with the token pair replaced.
func (c FitbitCredentials) WithToken(tok *oauth2.Token) FitbitCredentials {
	c.AccessToken, c.RefreshToken = tok.AccessToken, tok.RefreshToken
	return c
}
