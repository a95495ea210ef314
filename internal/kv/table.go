// Package kv is the key-value table abstraction the sharing-code services persist
// through. Every record carries a version tag that changes on each write, and
// updates are conditional on the version the caller last read.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record exists under the key.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned by Create when the key is taken.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrVersionConflict is returned by Update when the stored version differs
	// from the expected one.
	ErrVersionConflict = errors.New("version conflict")
)

// Attribute names managed by the table implementations.
const (
	PartitionAttr = "pk"
	KeyAttr       = "rk"
	VersionAttr   = "version"
)

// Item is a record in its stored attribute form.
type Item = map[string]types.AttributeValue

// Table is one partition of a key-value table.
type Table interface {
	// Get returns the record under key, or ErrNotFound.
	Get(ctx context.Context, key string) (Item, error)

	// Create stores a new record and returns its version. It fails with
	// ErrAlreadyExists if the key is taken; nothing is written in that case.
	Create(ctx context.Context, key string, item Item) (string, error)

	// Update replaces the record under key only if its stored version equals
	// expectedVersion, and returns the new version. It fails with
	// ErrVersionConflict on mismatch and ErrNotFound if the record is gone.
	Update(ctx context.Context, key string, item Item, expectedVersion string) (string, error)

	// Scan lazily yields every record in the partition.
	Scan(ctx context.Context) iter.Seq2[Item, error]
}

func newVersion() string {
	return uuid.NewString()
}

// Encode marshals a model value into an Item.
func Encode(v any) (Item, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return item, nil
}

// Decode unmarshals an Item into a model value.
func Decode[T any](item Item) (T, error) {
	var v T
	if err := attributevalue.UnmarshalMap(item, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return v, nil
}

// Load reads and decodes the record under key.
func Load[T any](ctx context.Context, t Table, key string) (T, error) {
	item, err := t.Get(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](item)
}

// All decodes every record yielded by t.Scan.
func All[T any](ctx context.Context, t Table) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for item, err := range t.Scan(ctx) {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			v, err := Decode[T](item)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}
