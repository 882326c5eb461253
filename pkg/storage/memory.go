package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"
)

// MemoryStorage keeps objects in process memory. It backs tests and
// single-node development setups where MinIO is overkill.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

func (m *MemoryStorage) Store(_ context.Context, reader io.Reader, key string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read object body: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, modified: time.Now()}
	m.mu.Unlock()

	return key, nil
}

func (m *MemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) CleanupBefore(_ context.Context, threshold time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, obj := range m.objects {
		if obj.modified.Before(threshold) {
			delete(m.objects, key)
		}
	}
	return nil
}

// Len reports the number of stored objects.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
