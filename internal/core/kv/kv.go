// Package kv defines the narrow key-value contract the terminal persists its
// local state through. Implementations live in infrastructure/storage/local.
package kv

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("kv: key not found")

// Store reads and writes whole values by key.
// Put must replace the value atomically: a reader sees either the old or the new value.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// GetJSON decodes the value stored under key into dst.
// It returns ErrNotFound when the key is absent and a decode error when the value is corrupt.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}
