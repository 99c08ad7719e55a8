// Package parser turns charge-controller export documents into typed
// per-metric series and stores them for windowed queries.
package parser

import (
	"sync"
)

// StringIntern provides thread-safe string interning. Exports repeat the
// same handful of metric names across millions of samples; interning keeps
// one canonical copy of each.
type StringIntern struct {
	mu   sync.RWMutex
	pool map[string]string
}

// NewStringIntern creates a new string interner.
func NewStringIntern() *StringIntern {
	return &StringIntern{
		pool: make(map[string]string, 64),
	}
}

// MaxInternPoolSize limits the intern pool to prevent unbounded memory
// growth when a document carries pathological metric names.
const MaxInternPoolSize = 10000

// Intern returns the canonical version of the string.
// If the pool has reached MaxInternPoolSize, returns the string without storing.
func (si *StringIntern) Intern(s string) string {
	// Fast path: read lock
	si.mu.RLock()
	if pooled, ok := si.pool[s]; ok {
		si.mu.RUnlock()
		return pooled
	}
	if len(si.pool) >= MaxInternPoolSize {
		si.mu.RUnlock()
		return s
	}
	si.mu.RUnlock()

	// Slow path: write lock
	si.mu.Lock()
	defer si.mu.Unlock()
	if pooled, ok := si.pool[s]; ok {
		return pooled
	}
	if len(si.pool) >= MaxInternPoolSize {
		return s
	}
	si.pool[s] = s
	return s
}

// Len returns the number of unique strings in the pool.
func (si *StringIntern) Len() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.pool)
}

// Clear removes all interned strings.
func (si *StringIntern) Clear() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.pool = make(map[string]string, 64)
}

// Global intern pool shared across parses, so merged multi-file analyses
// deduplicate metric names between documents.
var globalIntern = NewStringIntern()

// GetGlobalIntern returns the global string interner.
func GetGlobalIntern() *StringIntern {
	return globalIntern
}

// ResetGlobalIntern clears the global intern pool.
func ResetGlobalIntern() {
	globalIntern.Clear()
}
