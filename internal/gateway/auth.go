package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stemsi/aptiq-proctor/internal/model"
)

// TokenSource supplies the bearer credential for every request.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed bearer credential.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// TokenFile keeps the bearer credential on disk between runs.
type TokenFile struct {
	path string

	mu    sync.RWMutex
	token string
}

// NewTokenFile creates a TokenFile and loads any token already saved at path.
func NewTokenFile(path string) *TokenFile {
	tf := &TokenFile{path: path}
	if data, err := os.ReadFile(path); err == nil {
		tf.token = strings.TrimSpace(string(data))
	}
	return tf
}

func (f *TokenFile) Token() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token
}

// Save stores token in memory and on disk (mode 0600).
func (f *TokenFile) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
	return nil
}

// Clear forgets the token (logout).
func (f *TokenFile) Clear() error {
	f.mu.Lock()
	f.token = ""
	f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// Login exchanges credentials for a bearer token.
func (g *HTTPGateway) Login(ctx context.Context, email, password string) (*model.AuthSession, error) {
	var out model.AuthSession
	req := model.LoginRequest{Email: email, Password: password}
	if err := g.do(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("login response carried no token")
	}
	return &out, nil
}

// Me returns the user the current token belongs to.
func (g *HTTPGateway) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := g.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
