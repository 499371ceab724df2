// Package storage provides the places a backup document can be written to:
// a local directory (FileStore) and an S3-compatible bucket (S3Store).
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Ext is the extension every stored backup carries.
const Ext = ".mkbak"

var ErrInvalidName = errors.New("invalid backup name")

type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	// Get returns common.ErrNotFound for an unknown name.
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns the stored backup names in lexical order.
	List(ctx context.Context) ([]string, error)
}

// ValidateName accepts plain file names ending in Ext.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || path.Clean(name) != name || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, Ext) || len(name) == len(Ext) {
		return fmt.Errorf("%w: %q must end in %s", ErrInvalidName, name, Ext)
	}
	return nil
}
