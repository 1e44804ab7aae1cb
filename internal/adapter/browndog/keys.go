package browndog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

// CreateKey mints a new API key for the configured user.
func (c *Client) CreateKey(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, Request{
		Operation: "create_key",
		Method:    http.MethodPost,
		URL:       c.url("/keys/"),
		Header:    http.Header{"Accept": []string{"application/json"}},
		BasicAuth: true,
	})
	if err != nil {
		return "", fmt.Errorf("op=browndog.CreateKey: %w", err)
	}
	var body struct {
		Key string `json:"api-key"`
	}
	if err := decodeJSON("browndog.CreateKey", resp, &body); err != nil {
		return "", err
	}
	if body.Key == "" {
		return "", fmt.Errorf("op=browndog.CreateKey: %w: empty api-key", domain.ErrService)
	}
	return body.Key, nil
}

// CreateToken issues a bearer token under key.
func (c *Client) CreateToken(ctx context.Context, key string) (string, error) {
	resp, err := c.Do(ctx, Request{
		Operation: "create_token",
		Method:    http.MethodPost,
		URL:       c.url("/keys/", url.PathEscape(key), "/tokens"),
		Header:    http.Header{"Accept": []string{"application/json"}},
		BasicAuth: true,
	})
	if err != nil {
		return "", fmt.Errorf("op=browndog.CreateToken: %w", err)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeJSON("browndog.CreateToken", resp, &body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", fmt.Errorf("op=browndog.CreateToken: %w: empty token", domain.ErrService)
	}
	return body.Token, nil
}

// DeleteToken revokes a token.
func (c *Client) DeleteToken(ctx context.Context, token string) error {
	_, err := c.Do(ctx, Request{
		Operation: "delete_token",
		Method:    http.MethodDelete,
		URL:       c.url("/tokens/", url.PathEscape(token)),
		BasicAuth: true,
	})
	if err != nil {
		return fmt.Errorf("op=browndog.DeleteToken: %w", err)
	}
	return nil
}

// DeleteKey revokes a key; tokens issued under it stop working.
func (c *Client) DeleteKey(ctx context.Context, key string) error {
	_, err := c.Do(ctx, Request{
		Operation: "delete_key",
		Method:    http.MethodDelete,
		URL:       c.url("/keys/", url.PathEscape(key)),
		BasicAuth: true,
	})
	if err != nil {
		return fmt.Errorf("op=browndog.DeleteKey: %w", err)
	}
	return nil
}

// NewCredential creates a key and a token under it.
func (c *Client) NewCredential(ctx context.Context) (domain.Credential, error) {
	key, err := c.CreateKey(ctx)
	if err != nil {
		return domain.Credential{}, err
	}
	token, err := c.CreateToken(ctx, key)
	if err != nil {
		return domain.Credential{Key: key}, err
	}
	return domain.Credential{Key: key, Token: token}, nil
}
