// Package objstore defines the object-store capability the record store
// persists into, plus a driver registry mirroring the source and sink
// registries: drivers self-register and are selected by name from config.
package objstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Driver is the common behaviour every object-store backend exposes.
type Driver interface {
	Configure(any) error // driver-specific config ⇒ struct
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) (bool, error)
	Close() error
}

type factory = func() Driver

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewDriver(name string) (Driver, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown object store %q", name)
}
