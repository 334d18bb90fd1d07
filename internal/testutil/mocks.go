package testutil

import (
	"context"
	"sync"
)

// MockLocalStorage is an in-memory key-value store with injectable errors.
// Error keys are "get", "set" and "remove".
type MockLocalStorage struct {
	mu     sync.Mutex
	values map[string]string
	errors *ErrorInjector
}

// LocalOption is a functional option for configuring MockLocalStorage
type LocalOption func(*MockLocalStorage)

// WithValue seeds a key
func WithValue(key, value string) LocalOption {
	return func(m *MockLocalStorage) {
		m.values[key] = value
	}
}

// WithLocalError makes the operation named by key fail
func WithLocalError(key string, err error) LocalOption {
	return func(m *MockLocalStorage) {
		m.errors.InjectError(key, err)
	}
}

// WithLocalErrorAfter makes the operation named by key fail after n
// successful calls
func WithLocalErrorAfter(key string, n int, err error) LocalOption {
	return func(m *MockLocalStorage) {
		m.errors.InjectErrorAfterN(key, n, err)
	}
}

// NewMockLocalStorage creates an empty store
func NewMockLocalStorage(opts ...LocalOption) *MockLocalStorage {
	m := &MockLocalStorage{
		values: make(map[string]string),
		errors: NewErrorInjector(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// GetLocal returns the stored value and whether it exists
func (m *MockLocalStorage) GetLocal(_ context.Context, key string) (string, bool, error) {
	if err := m.errors.ShouldError("get"); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.values[key]

	return value, ok, nil
}

// SetLocal stores value under key
func (m *MockLocalStorage) SetLocal(_ context.Context, key, value string) error {
	if err := m.errors.ShouldError("set"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value

	return nil
}

// RemoveLocal deletes key
func (m *MockLocalStorage) RemoveLocal(_ context.Context, key string) error {
	if err := m.errors.ShouldError("remove"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)

	return nil
}

// Value returns the raw stored value
func (m *MockLocalStorage) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.values[key]

	return value, ok
}

// CallCount returns how often the operation named by key was called
func (m *MockLocalStorage) CallCount(key string) int {
	return m.errors.GetCount(key)
}

// ErrorInjector provides systematic error injection for testing
type ErrorInjector struct {
	errors map[string]error
	after  map[string]int
	counts map[string]int
	mu     sync.Mutex
}

// NewErrorInjector creates a new error injector
func NewErrorInjector() *ErrorInjector {
	return &ErrorInjector{
		errors: make(map[string]error),
		after:  make(map[string]int),
		counts: make(map[string]int),
	}
}

// InjectError configures an error to be returned for a specific key
func (e *ErrorInjector) InjectError(key string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors[key] = err
	delete(e.after, key)
}

// InjectErrorAfterN configures an error to be returned after N successful calls
func (e *ErrorInjector) InjectErrorAfterN(key string, n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors[key] = err
	e.after[key] = n
}

// ShouldError counts a call for key and returns the injected error, if due
func (e *ErrorInjector) ShouldError(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.counts[key]++

	err, ok := e.errors[key]
	if !ok {
		return nil
	}

	if n, delayed := e.after[key]; delayed && e.counts[key] <= n {
		return nil
	}

	return err
}

// GetCount returns the number of times a key was checked
func (e *ErrorInjector) GetCount(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.counts[key]
}
