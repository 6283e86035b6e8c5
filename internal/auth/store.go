package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

const tokenBytes = 10

// Store holds every registered user behind a single lock. Reads and writes
// never overlap.
type Store struct {
	mu      sync.Mutex
	users   []User
	entropy io.Reader
}

func NewStore() *Store {
	return &Store{entropy: rand.Reader}
}

func (s *Store) Register(username, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.findByUsernameLocked(username); ok {
		return "", ErrUsernameTaken
	}

	token, err := generateToken(s.entropy, tokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	s.users = append(s.users, User{
		Username: username,
		Password: password,
		Token:    token,
	})
	return token, nil
}

// Authenticate returns the token issued at registration. Tokens are never
// rotated.
func (s *Store) Authenticate(username, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.findByUsernameLocked(username)
	if !ok {
		return "", ErrUserNotFound
	}
	if u.Password != password {
		return "", ErrInvalidCredentials
	}
	return u.Token, nil
}

func (s *Store) ResolveToken(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.findByTokenLocked(token)
	if !ok {
		return "", ErrInvalidToken
	}
	return u.Username, nil
}

// WithTokenOwner resolves token and runs fn with the owner's username while
// the store lock is still held. Callers that take another lock inside fn
// must always take it after this one.
func (s *Store) WithTokenOwner(token string, fn func(username string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.findByTokenLocked(token)
	if !ok {
		return ErrInvalidToken
	}
	return fn(u.Username)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) findByUsernameLocked(username string) (User, bool) {
	for _, u := range s.users {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}

// Token collisions between users are not checked; the first match wins.
func (s *Store) findByTokenLocked(token string) (User, bool) {
	for _, u := range s.users {
		if u.Token == token {
			return u, true
		}
	}
	return User{}, false
}

func generateToken(r io.Reader, n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
