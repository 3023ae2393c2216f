package bluesky

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

var (
	// ErrAuthentication is returned when a session cannot be created, either
	// because the credentials were rejected or the PDS could not be reached.
	ErrAuthentication = errors.New("authentication failed")

	// ErrUnauthenticated is returned by calls made without a valid session.
	ErrUnauthenticated = errors.New("not authenticated: create a session first")
)

// Session is the identity produced by a successful login. It is a value: it
// is passed explicitly to every call that needs authorization and is never
// modified after creation.
type Session struct {
	AccessJwt  string
	RefreshJwt string
	DID        string
	Handle     string
}

// Valid reports whether the session carries a token and an account DID.
func (s Session) Valid() bool {
	return s.AccessJwt != "" && s.DID != ""
}

// AuthorizationHeader returns the value of the Authorization header for s.
func (s Session) AuthorizationHeader() string {
	return "Bearer " + s.AccessJwt
}

// CleanHandle normalizes user input into a login identifier: it drops
// non-printable and non-ASCII characters, surrounding whitespace and a leading
// @, and appends .bsky.social to bare names. Email addresses are kept as-is.
func CleanHandle(input string) string {
	handle := strings.Map(func(r rune) rune {
		if r >= unicode.MaxASCII || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, input)
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")

	if handle == "" || strings.Contains(handle, "@") {
		return handle
	}
	if !strings.Contains(handle, ".") {
		return handle + ".bsky.social"
	}
	return handle
}

// loginCandidates returns the identifiers tried by Authenticate, in order and
// without duplicates.
func loginCandidates(input string) []string {
	trimmed := strings.TrimSpace(input)
	all := []string{CleanHandle(input), trimmed, strings.TrimPrefix(trimmed, "@")}

	seen := make(map[string]struct{}, len(all))
	var out []string
	for _, id := range all {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Authenticate creates a session, trying a few spellings of the identifier
// before giving up. The first successful attempt wins.
func Authenticate(ctx context.Context, c *Client, identifier, password string, logger *slog.Logger) (Session, error) {
	candidates := loginCandidates(identifier)
	if len(candidates) == 0 || password == "" {
		return Session{}, fmt.Errorf("%w: identifier and password are required", ErrAuthentication)
	}

	var lastErr error
	for _, id := range candidates {
		s, err := c.CreateSession(ctx, id, password)
		if err == nil {
			logger.Info("authenticated", "identifier", id, "did", s.DID)
			return s, nil
		}
		logger.Debug("login attempt failed", "identifier", id, "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return Session{}, lastErr
}
