// Package immutable provides an in-process implementation of the immutable
// log port. Records are write-once; removal detaches a record but never
// rewrites one.
package immutable

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	pkgerrors "auditgraph/pkg/errors"
)

// idPrefix namespaces the opaque record URNs this driver issues.
const idPrefix = "immutable:memory:"

// record is one anchored entry.
type record struct {
	controller string
	data       []byte
}

// MemoryLog implements ports.ImmutableLog in process memory.
type MemoryLog struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewMemoryLog creates a new in-memory immutable log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		records: make(map[string]*record),
	}
}

// Store anchors data and returns the opaque record URN.
func (l *MemoryLog) Store(ctx context.Context, controller string, data []byte) (string, error) {
	if controller == "" {
		return "", pkgerrors.NewValidationError("controller is required")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate record id: %w", err)
	}
	id := idPrefix + hex.EncodeToString(raw)

	stored := make([]byte, len(data))
	copy(stored, data)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[id] = &record{controller: controller, data: stored}
	return id, nil
}

// Get retrieves anchored data by record URN.
func (l *MemoryLog) Get(ctx context.Context, id string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, exists := l.records[id]
	if !exists {
		return nil, pkgerrors.NewNotFoundError("immutable record")
	}
	data := make([]byte, len(entry.data))
	copy(data, entry.data)
	return data, nil
}

// Remove detaches a record. Only the controlling identity may remove its
// own records.
func (l *MemoryLog) Remove(ctx context.Context, controller, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.records[id]
	if !exists {
		return pkgerrors.NewNotFoundError("immutable record")
	}
	if entry.controller != controller {
		return pkgerrors.NewValidationError("controller does not own the record")
	}
	delete(l.records, id)
	return nil
}
