package auth

import (
	"bytes"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
)

func TestRegisterIssuesBase64Token(t *testing.T) {
	store := NewStore()

	token, err := store.Register("alice", "pw")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if len(token) != 16 {
		t.Fatalf("expected 16-char token, got %q", token)
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not standard base64: %v", err)
	}
	if len(raw) != tokenBytes {
		t.Fatalf("expected %d token bytes, got %d", tokenBytes, len(raw))
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	store := NewStore()
	if _, err := store.Register("alice", "pw"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	_, err := store.Register("alice", "different")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 user, got %d", store.Len())
	}

	if _, err := store.Register("Alice", "pw"); err != nil {
		t.Fatalf("usernames are case-sensitive, Register(Alice) error: %v", err)
	}
}

func TestRegisterEntropyFailure(t *testing.T) {
	store := NewStore()
	store.entropy = bytes.NewReader([]byte{1, 2, 3})

	if _, err := store.Register("alice", "pw"); err == nil {
		t.Fatalf("expected error when entropy source runs dry")
	}
	if store.Len() != 0 {
		t.Fatalf("expected no user stored after failed register, got %d", store.Len())
	}
}

func TestAuthenticateReturnsRegisteredToken(t *testing.T) {
	store := NewStore()
	token, err := store.Register("alice", "pw")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := store.Authenticate("alice", "pw")
		if err != nil {
			t.Fatalf("Authenticate() error: %v", err)
		}
		if got != token {
			t.Fatalf("expected token %q, got %q", token, got)
		}
	}
}

func TestAuthenticateFailures(t *testing.T) {
	store := NewStore()
	if _, err := store.Register("alice", "pw"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if _, err := store.Authenticate("bob", "pw"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.Authenticate("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestResolveToken(t *testing.T) {
	store := NewStore()
	token, err := store.Register("alice", "pw")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	got, err := store.ResolveToken(token)
	if err != nil {
		t.Fatalf("ResolveToken() error: %v", err)
	}
	if got != "alice" {
		t.Fatalf("expected alice, got %q", got)
	}
	if _, err := store.ResolveToken("nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestWithTokenOwner(t *testing.T) {
	store := NewStore()
	token, err := store.Register("alice", "pw")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	var seen string
	if err := store.WithTokenOwner(token, func(username string) error {
		seen = username
		return nil
	}); err != nil {
		t.Fatalf("WithTokenOwner() error: %v", err)
	}
	if seen != "alice" {
		t.Fatalf("expected alice, got %q", seen)
	}

	called := false
	err = store.WithTokenOwner("bogus", func(string) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if called {
		t.Fatalf("callback must not run for an unknown token")
	}

	boom := errors.New("boom")
	if err := store.WithTokenOwner(token, func(string) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestConcurrentRegisterSameUsername(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Register("alice", "pw"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful register, got %d", successes)
	}
}
