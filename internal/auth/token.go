// Package auth holds the application access token used against the trip backend.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoUser is returned when no token is set or its subject is not a user id.
var ErrNoUser = errors.New("no authenticated user")

// Store is a concurrency-safe holder for the current access token.
// The backend signs the token; the planner only reads claims from it.
type Store struct {
	mu     sync.RWMutex
	token  string
	userID int64
	hasID  bool
}

// NewStore creates a store seeded with token (which may be empty).
func NewStore(token string) *Store {
	s := &Store{}
	if token != "" {
		_ = s.Set(token)
	}
	return s
}

// Set replaces the token. The token is kept even when its claims cannot be read.
func (s *Store) Set(token string) error {
	id, err := userIDFromToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.userID, s.hasID = id, err == nil
	return err
}

// Clear drops the token, e.g. after the backend rejected it.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.userID, s.hasID = "", 0, false
}

// Token returns the bearer token or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the authenticated user id taken from the token subject.
func (s *Store) UserID() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasID {
		return 0, ErrNoUser
	}
	return s.userID, nil
}

func userIDFromToken(token string) (int64, error) {
	if token == "" {
		return 0, ErrNoUser
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("parsing access token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("reading subject: %w", err)
	}

	if sub == "" {
		if raw, ok := claims["userId"].(float64); ok {
			return int64(raw), nil
		}
		return 0, ErrNoUser
	}

	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject %q", ErrNoUser, sub)
	}
	return id, nil
}
