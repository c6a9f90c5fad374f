package dbutils

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fioncat/dbutils/metrics"
	"github.com/fioncat/dbutils/types"
	"github.com/sirupsen/logrus"
)

// Unit is one runnable notebook. Returning the error of Notebook.Exit stops
// the unit and hands the value to the caller.
type Unit func(ctx context.Context, u *DBUtils) error

// Registry maps notebook paths to units.
type Registry struct {
	mu    sync.RWMutex
	units map[string]Unit
}

func NewRegistry() *Registry {
	return &Registry{units: make(map[string]Unit)}
}

// Register adds a unit under path, replacing any unit registered there.
func (r *Registry) Register(name string, unit Unit) error {
	if unit == nil {
		return fmt.Errorf("%w: notebook %q has no unit", types.ErrInvalidArgument, name)
	}
	p, err := notebookPath(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[p] = unit
	return nil
}

func (r *Registry) Get(name string) (Unit, error) {
	p, err := notebookPath(name)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	unit, ok := r.units[p]
	if !ok {
		return nil, fmt.Errorf("%w: notebook %q", types.ErrNotFound, name)
	}
	return unit, nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.units))
	for p := range r.units {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func notebookPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: notebook path is empty", types.ErrInvalidArgument)
	}
	return path.Clean("/" + name), nil
}

// ExitError carries the exit value of a unit.
type ExitError struct {
	Value string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("notebook exited with value %q", e.Value)
}

// Notebook runs units of the workspace registry.
type Notebook struct {
	u *DBUtils
}

func (n *Notebook) Help(method string) string {
	return groupHelp("notebook", method)
}

// Exit returns the error a unit returns to stop with value.
func (n *Notebook) Exit(value string) error {
	return &ExitError{Value: value}
}

type runResult struct {
	err error
}

// Run runs the unit registered at name in a new session with arguments
// bound and returns its exit value. timeoutSeconds <= 0 disables the
// timeout. On timeout the unit's context is canceled and the call fails
// with types.ErrTimeout.
func (n *Notebook) Run(ctx context.Context, name string, timeoutSeconds int, arguments map[string]string) (value string, err error) {
	defer observe("notebook", "run", &err)

	unit, err := n.u.ws.Notebooks.Get(name)
	if err != nil {
		return "", err
	}

	opts := []Option{WithArguments(arguments)}
	if n.u.job != nil {
		opts = append(opts, WithJobContext(n.u.job.runID, n.u.job.taskKey))
	}
	child := New(n.u.ws, opts...)
	logger := n.u.logger.WithField("Child", child.session)
	cleanup := func() {
		err := child.Widgets().RemoveAll(context.Background())
		if err != nil {
			logger.Warnf("Remove widgets of notebook %q: %v", name, err)
		}
		child.Close()
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if timeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	logger.Infof("Run notebook %q, timeout %ds", name, timeoutSeconds)

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: fmt.Errorf("notebook %q panic: %v", name, r)}
			}
		}()
		done <- runResult{err: unit(runCtx, child)}
	}()

	select {
	case res := <-done:
		cleanup()
		if errors.Is(res.err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", n.timeout(logger, name, timeoutSeconds)
		}
		value, err = n.result(name, res.err)
		logger.Debugf("Notebook %q done, took %v", name, time.Since(start))
		return value, err

	case <-runCtx.Done():
		// Let the unit observe the cancellation before its session is
		// cleaned up.
		go func() {
			<-done
			cleanup()
		}()
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", n.timeout(logger, name, timeoutSeconds)
		}
		metrics.RecordNotebookRun("error")
		return "", ctx.Err()
	}
}

func (n *Notebook) timeout(logger *logrus.Entry, name string, timeoutSeconds int) error {
	metrics.RecordNotebookRun("timeout")
	logger.Warnf("Notebook %q timed out after %ds", name, timeoutSeconds)
	return fmt.Errorf("%w: notebook %q exceeded %ds", types.ErrTimeout, name, timeoutSeconds)
}

func (n *Notebook) result(name string, err error) (string, error) {
	if err == nil {
		metrics.RecordNotebookRun("ok")
		return "", nil
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		metrics.RecordNotebookRun("exit")
		return exit.Value, nil
	}
	metrics.RecordNotebookRun("error")
	return "", fmt.Errorf("run notebook %q: %w", name, err)
}
