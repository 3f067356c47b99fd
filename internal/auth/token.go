// Package auth loads the optional bearer token sent to the backend.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/droidcore/mission/internal/config"
	"github.com/droidcore/mission/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

// ExpiryWarningWindow is how soon before expiry a token is reported as
// expiring.
const ExpiryWarningWindow = 10 * time.Minute

// ErrTokenExpired is returned when the configured token is already expired.
var ErrTokenExpired = errors.New("access token expired")

// ExpiresAt returns the expiry encoded in a JWT, if present.
//
// The signature is not verified; the backend is the authority. This only
// drives client-side warnings.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ExpiringSoon reports whether token expires within window of now. Tokens
// without an expiry, including opaque non-JWT tokens, never expire.
func ExpiringSoon(token string, window time.Duration, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return exp.Sub(now) <= window
}

// Resolve returns the token to send, or "" when none is configured. An
// explicit AccessToken wins over the stored token file.
func Resolve(cfg *config.Config) (string, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" && cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return "", fmt.Errorf("failed to read %s: %w", cfg.TokenFile, err)
		default:
			token = strings.TrimSpace(string(data))
		}
	}
	if token == "" {
		return "", nil
	}

	now := time.Now()
	if exp, ok := ExpiresAt(token); ok {
		if !exp.After(now) {
			return "", fmt.Errorf("%w at %s", ErrTokenExpired, exp.Format(time.RFC3339))
		}
		if ExpiringSoon(token, ExpiryWarningWindow, now) {
			logger.Warnf("access token expires at %s", exp.Format(time.RFC3339))
		}
	}
	return token, nil
}

// Store writes token to path, creating the parent directory.
func Store(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to write access token: %w", err)
	}
	return nil
}
