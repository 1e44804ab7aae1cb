//go:build e2e

package e2e_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE2E_Outputs(t *testing.T) {
	requireSession(t)
	outputs, err := client.Outputs(baseCtx, token)
	require.NoError(t, err)
	assert.NotEmpty(t, outputs)
}

func TestE2E_Inputs(t *testing.T) {
	requireSession(t)
	inputs, err := client.Inputs(baseCtx, token)
	require.NoError(t, err)
	assert.NotEmpty(t, inputs)
}

func TestE2E_InputsForPNG(t *testing.T) {
	requireSession(t)
	_, err := client.InputsFor(baseCtx, token, "png")
	require.NoError(t, err)
}

func TestE2E_Converters(t *testing.T) {
	requireSession(t)
	_, err := client.Converters(baseCtx, token)
	require.NoError(t, err)
}

func TestE2E_ConvertersForPNG(t *testing.T) {
	requireSession(t)
	_, err := client.ConvertersFor(baseCtx, token, "png")
	require.NoError(t, err)
}
