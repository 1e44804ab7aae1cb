// Package usecase contains the harness flows: credential sessions, conversion
// and extraction jobs, and test-run reporting.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
)

// CredentialAPI manages API keys and tokens.
type CredentialAPI interface {
	CreateKey(ctx domain.Context) (string, error)
	CreateToken(ctx domain.Context, key string) (string, error)
	DeleteToken(ctx domain.Context, token string) error
	DeleteKey(ctx domain.Context, key string) error
}

// Session owns the credential shared by a suite. Open it once before the
// first job and Close it after the last one.
type Session struct {
	API        CredentialAPI
	Credential domain.Credential
}

// NewSession constructs a Session.
func NewSession(api CredentialAPI) *Session { return &Session{API: api} }

// Open creates a key and a token under it. A key whose token cannot be
// issued is deleted again.
func (s *Session) Open(ctx domain.Context) (domain.Credential, error) {
	if s.Credential.Key != "" {
		return domain.Credential{}, fmt.Errorf("%w: session already open", domain.ErrInvalidArgument)
	}
	key, err := s.API.CreateKey(ctx)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("op=usecase.Session.Open: %w", err)
	}
	token, err := s.API.CreateToken(ctx, key)
	if err != nil {
		if derr := s.API.DeleteKey(ctx, key); derr != nil {
			obsctx.LoggerFromContext(ctx).Warn("delete key after token failure", slog.Any("error", derr))
		}
		return domain.Credential{}, fmt.Errorf("op=usecase.Session.Open: %w", err)
	}
	s.Credential = domain.Credential{Key: key, Token: token}
	obsctx.LoggerFromContext(ctx).Info("session opened")
	return s.Credential, nil
}

// Token returns the bearer token of the open session.
func (s *Session) Token() string { return s.Credential.Token }

// Close deletes the token and then the key. Both deletions are attempted
// and both failures are reported.
func (s *Session) Close(ctx domain.Context) error {
	cred := s.Credential
	s.Credential = domain.Credential{}
	var errs []error
	if cred.Token != "" {
		if err := s.API.DeleteToken(ctx, cred.Token); err != nil {
			errs = append(errs, err)
		}
	}
	if cred.Key != "" {
		if err := s.API.DeleteKey(ctx, cred.Key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("op=usecase.Session.Close: %w", err)
	}
	return nil
}
