package teardown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_RunsLIFO(t *testing.T) {
	s := New()
	var order []string
	for _, name := range []string{"key", "token", "file"} {
		s.Defer(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	assert.Equal(t, 3, s.Len())
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, []string{"file", "token", "key"}, order)
	assert.Zero(t, s.Len())
}

func TestScope_FailureDoesNotStopOthers(t *testing.T) {
	s := New()
	errA := errors.New("delete key failed")
	errB := errors.New("delete token failed")
	ran := 0
	s.Defer("key", func(context.Context) error { ran++; return errA })
	s.Defer("token", func(context.Context) error { ran++; return errB })
	s.Defer("file", func(context.Context) error { ran++; return nil })

	err := s.Close(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, ran)
	assert.True(t, errors.Is(err, errA))
	assert.True(t, errors.Is(err, errB))
	assert.Contains(t, err.Error(), "op=teardown.token")
}

func TestScope_CloseTwiceRunsOnce(t *testing.T) {
	s := New()
	n := 0
	s.Defer("x", func(context.Context) error { n++; return nil })
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, n)
}

func TestRemoveFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "artifact.png")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	s := New()
	s.Add(RemoveFile(p))
	s.Add(RemoveFile(p))
	require.NoError(t, s.Close(context.Background()))

	_, err := os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveFile_DirectoryNotEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0o644))

	err := RemoveFile(dir).Run(context.Background())
	assert.Error(t, err)
}
