// Package teardown collects release steps for remote and local resources and
// runs them in reverse order on every exit path.
package teardown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
)

// Step releases one resource.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scope is a LIFO stack of release steps. It is safe for concurrent use;
// Close runs each step once.
type Scope struct {
	mu    sync.Mutex
	steps []Step
}

// New returns an empty scope.
func New() *Scope { return &Scope{} }

// Add pushes a release step.
func (s *Scope) Add(step Step) {
	s.mu.Lock()
	s.steps = append(s.steps, step)
	s.mu.Unlock()
}

// Defer pushes fn under name.
func (s *Scope) Defer(name string, fn func(ctx context.Context) error) {
	s.Add(Func(name, fn))
}

// Len reports the number of pending steps.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Close runs every pending step, newest first. A failing step does not stop
// the rest; failures are logged and returned joined.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	steps := s.steps
	s.steps = nil
	s.mu.Unlock()

	lg := obsctx.LoggerFromContext(ctx)
	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		if err := st.Run(ctx); err != nil {
			lg.Warn("teardown step failed", slog.String("step", st.Name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("op=teardown.%s: %w", st.Name, err))
			continue
		}
		lg.Debug("teardown step done", slog.String("step", st.Name))
	}
	return errors.Join(errs...)
}

// Func wraps fn as a Step.
func Func(name string, fn func(ctx context.Context) error) Step {
	return Step{Name: name, Run: fn}
}

// RemoveFile deletes path; a file that is already gone is not an error.
func RemoveFile(path string) Step {
	return Step{
		Name: "remove " + path,
		Run: func(context.Context) error {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			return nil
		},
	}
}
