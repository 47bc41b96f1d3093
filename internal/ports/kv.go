package ports

import (
	"clusterdir/internal/types"
	"context"
)

// KV is the storage capability every backend provides. Paths are slash-separated and relative
// to the backend root, e.g. "clusters/production/my-cluster".
type KV interface {
	// Read returns the record stored at path.
	// MUST return types.ErrNotFound if nothing is stored there.
	Read(ctx context.Context, path string) (types.Record, error)

	// Write replaces the record stored at path.
	Write(ctx context.Context, path string, rec types.Record) error

	// Delete removes the record at path. Deleting a missing record is not an error.
	Delete(ctx context.Context, path string) error

	// List returns the names of the records directly under prefix, sorted.
	// A prefix with no records yields an empty list, not an error.
	List(ctx context.Context, prefix string) ([]string, error)
}

type OpKind int

const (
	OpWrite OpKind = iota
	OpDelete
)

// Op is one mutation inside a transaction.
type Op struct {
	Kind   OpKind
	Path   string
	Record types.Record
}

func WriteOp(path string, rec types.Record) Op { return Op{Kind: OpWrite, Path: path, Record: rec} }
func DeleteOp(path string) Op                  { return Op{Kind: OpDelete, Path: path} }

// Transactional is implemented by backends able to apply several mutations all-or-nothing.
// Callers type-assert a KV against it to pick between one transaction and independent writes.
type Transactional interface {
	Transact(ctx context.Context, ops ...Op) error
}

// TransactionLimiter is implemented by transactional backends that cap the number of ops in one
// transaction. Larger updates fall back to independent writes.
type TransactionLimiter interface {
	MaxTransactOps() int
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}
