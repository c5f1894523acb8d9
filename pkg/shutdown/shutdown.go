// Package shutdown coordinates graceful teardown for long-running commands
// (watch, devserver). Hooks run in reverse registration order.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Manager collects teardown hooks and runs them on SIGINT/SIGTERM.
type Manager struct {
	mu      sync.Mutex
	hooks   []func(context.Context) error
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
}

// New creates a Manager with the given overall teardown timeout.
func New(timeout time.Duration) *Manager {
	return &Manager{
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register adds a teardown hook. Hooks run LIFO.
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Done is closed once a shutdown signal arrives.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until SIGINT or SIGTERM, then runs all hooks.
func (m *Manager) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	m.once.Do(func() { close(m.done) })
	m.Shutdown()
}

// Shutdown runs the registered hooks in reverse order under the timeout.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.hooks) - 1; i >= 0; i-- {
		if err := m.hooks[i](ctx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown hook error: %v\n", err)
		}
	}
}

// StopHTTPServer wraps an http.Server-style Shutdown as a hook.
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}
}

// CloseResource wraps an io.Closer as a hook.
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
