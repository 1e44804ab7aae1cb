//go:build e2e

package e2e_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

func TestE2E_TokenForbiddenAfterKeyDeleted(t *testing.T) {
	requireSession(t)
	key, err := client.CreateKey(baseCtx)
	require.NoError(t, err)
	tok, err := client.CreateToken(baseCtx, key)
	if err != nil {
		_ = client.DeleteKey(baseCtx, key)
		require.NoError(t, err)
	}

	_, err = client.Outputs(baseCtx, tok)
	require.NoError(t, err)

	require.NoError(t, client.DeleteKey(baseCtx, key))
	_, err = client.Outputs(baseCtx, tok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)
}
