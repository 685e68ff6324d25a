// Package mock provides a test double for the store.KV interface.
//
// KV keeps entries in memory like memstore, but additionally records every
// call and lets tests inject errors per operation.
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/eclectech/pkg/store"
)

// Call records a single invocation of any KV method.
type Call struct {
	// Method is the name of the invoked method ("Get", "Put", ...).
	Method string
	// Key is the key (or prefix for List) the method was called with.
	Key string
	// Value is the value passed to Put.
	Value string
}

// KV is a mock implementation of store.KV.
type KV struct {
	mu sync.Mutex

	// GetErr, PutErr, DeleteErr, ListErr and PingErr are returned by the
	// corresponding methods when non-nil.
	GetErr    error
	PutErr    error
	DeleteErr error
	ListErr   error
	PingErr   error

	// Calls records every invocation in order.
	Calls []Call

	entries map[string]string
}

// Seed stores value under key without recording a call.
func (m *KV) Seed(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	m.entries[key] = value
}

// Value returns the stored value for key without recording a call.
func (m *KV) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

// CallCount returns how many times method was invoked.
func (m *KV) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Get implements store.KV.
func (m *KV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Method: "Get", Key: key})
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

// Put implements store.KV.
func (m *KV) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Method: "Put", Key: key, Value: value})
	if m.PutErr != nil {
		return m.PutErr
	}
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	m.entries[key] = value
	return nil
}

// Delete implements store.KV.
func (m *KV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Method: "Delete", Key: key})
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.entries, key)
	return nil
}

// List implements store.KV.
func (m *KV) List(_ context.Context, prefix string) ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Method: "List", Key: prefix})
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []store.Entry
	for k, v := range m.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, store.Entry{Key: k, Value: v, UpdatedAt: time.Now()})
		}
	}
	slices.SortFunc(out, func(a, b store.Entry) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Ping implements store.KV.
func (m *KV) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Method: "Ping"})
	return m.PingErr
}

// Close implements store.KV.
func (m *KV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Method: "Close"})
	return nil
}

// Ensure KV implements store.KV at compile time.
var _ store.KV = (*KV)(nil)
