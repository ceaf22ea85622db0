package system

import (
	"context"
	"fmt"
	"sync"
)

// Manager starts registered services in registration order and stops them in
// reverse. A failed start rolls back the services already running.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]struct{}
	running  bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{names: make(map[string]struct{})}
}

// Register adds a service. Registration is rejected after Start and for
// duplicate names.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return fmt.Errorf("system: nil service")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("system: cannot register %q after start", svc.Name())
	}
	if _, exists := m.names[svc.Name()]; exists {
		return fmt.Errorf("system: duplicate service %q", svc.Name())
	}
	m.names[svc.Name()] = struct{}{}
	m.services = append(m.services, svc)
	return nil
}

// Start starts every registered service in order. On failure the services
// already started are stopped in reverse before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("system: already started")
	}

	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = m.services[j].Stop(ctx)
			}
			return fmt.Errorf("system: start %q: %w", svc.Name(), err)
		}
	}
	m.running = true
	return nil
}

// Stop stops services in reverse registration order, continuing past
// failures and returning the first error encountered.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}

	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		if err := m.services[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("system: stop %q: %w", m.services[i].Name(), err)
		}
	}
	m.running = false
	return firstErr
}
