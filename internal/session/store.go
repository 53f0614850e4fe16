package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"impact-gateway/internal/model"
)

// Fixed storage keys.
const (
	KeyToken = "auth_token"
	KeyUser  = "user"
)

// ErrNotFound is returned by a Backend when a key has no value.
var ErrNotFound = errors.New("session: key not found")

// Backend is a persistent string key-value store.
// Implementations must be safe for concurrent use. SetMany writes all
// values or none of them.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Store reads and writes a Session through a Backend.
type Store struct {
	backend Backend
}

// NewStore returns a Store over backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// NewMemoryStore returns a Store that lives only as long as the process.
func NewMemoryStore() *Store {
	return NewStore(NewMemoryBackend())
}

// Load returns the stored session, or nil when no token is stored.
func (s *Store) Load(ctx context.Context) (*model.Session, error) {
	token, err := s.backend.Get(ctx, KeyToken)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	sess := &model.Session{Token: token}
	raw, err := s.backend.Get(ctx, KeyUser)
	switch {
	case errors.Is(err, ErrNotFound):
		return sess, nil
	case err != nil:
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &sess.User); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return sess, nil
}

// Token returns the stored bearer token, or "" when there is none.
func (s *Store) Token(ctx context.Context) (string, error) {
	token, err := s.backend.Get(ctx, KeyToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return token, err
}

// Save persists sess, replacing any previous session. The token and user
// are written together, so a failed save leaves the previous session intact.
func (s *Store) Save(ctx context.Context, sess *model.Session) error {
	if sess == nil || sess.Token == "" {
		return errors.New("session: token is required")
	}
	user, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.backend.SetMany(ctx, map[string]string{
		KeyToken: sess.Token,
		KeyUser:  string(user),
	}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes both session keys. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, KeyToken, KeyUser); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
