package kv

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MemoryTable implements Table using an in-memory map. It is used by tests and
// by STORE_BACKEND=memory for running the service without DynamoDB.
type MemoryTable struct {
	name  string
	items map[string]Item
	mu    sync.RWMutex
}

// NewMemoryTable creates an empty MemoryTable. name only appears in errors.
func NewMemoryTable(name string) *MemoryTable {
	return &MemoryTable{
		name:  name,
		items: make(map[string]Item),
	}
}

func (m *MemoryTable) Get(ctx context.Context, key string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", m.name, key, ErrNotFound)
	}
	return maps.Clone(item), nil
}

func (m *MemoryTable) Create(ctx context.Context, key string, item Item) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[key]; ok {
		return "", fmt.Errorf("%s/%s: %w", m.name, key, ErrAlreadyExists)
	}
	version := m.store(key, item)
	return version, nil
}

func (m *MemoryTable) Update(ctx context.Context, key string, item Item, expectedVersion string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.items[key]
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", m.name, key, ErrNotFound)
	}
	if versionOf(existing) != expectedVersion {
		return "", fmt.Errorf("%s/%s: %w", m.name, key, ErrVersionConflict)
	}
	version := m.store(key, item)
	return version, nil
}

// store must be called with m.mu held.
func (m *MemoryTable) store(key string, item Item) string {
	stored := maps.Clone(item)
	if stored == nil {
		stored = Item{}
	}
	version := newVersion()
	stored[KeyAttr] = &types.AttributeValueMemberS{Value: key}
	stored[VersionAttr] = &types.AttributeValueMemberS{Value: version}
	m.items[key] = stored
	return version
}

// Scan yields a snapshot of the keys present when iteration starts, in key order.
// The lock is not held while the consumer runs.
func (m *MemoryTable) Scan(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		m.mu.RLock()
		keys := slices.Sorted(maps.Keys(m.items))
		m.mu.RUnlock()

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			item, err := m.Get(ctx, key)
			if err != nil {
				continue // removed since the snapshot
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Len returns the number of stored records.
func (m *MemoryTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func versionOf(item Item) string {
	if v, ok := item[VersionAttr].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
