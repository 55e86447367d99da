package txn

import "context"

// Isolation is the transaction isolation level requested for one unit of work
type Isolation int

const (
	// ReadCommitted is the default; correctness comes from explicit row locks
	ReadCommitted Isolation = iota
	// RepeatableRead gives a stable snapshot, used for multi-row reads such as reconciliation
	RepeatableRead
	// Serializable is reserved for operations whose decision spans rows that cannot be locked up front
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case RepeatableRead:
		return "repeatable read"
	case Serializable:
		return "serializable"
	default:
		return "read committed"
	}
}

// Options configures a transaction
type Options struct {
	Isolation Isolation
	ReadOnly  bool
	// Savepoint applies inside an enclosing transaction: fn's failure rolls back only
	// fn's work and the enclosing transaction stays usable. Without one it has no effect.
	Savepoint bool
}

// Manager runs a function inside one database transaction.
//
// The transaction travels in the context, so repositories called with the context passed to fn
// take part in it. A context that already carries a transaction joins it: the outer caller owns
// commit and rollback, and the outer isolation level applies.
//
// fn returning an error (or panicking) rolls back everything; there is no partial commit,
// except that a nested call with Options.Savepoint rolls back only its own work.
type Manager interface {
	Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error
}

// Default is read committed, read-write
func Default() Options {
	return Options{Isolation: ReadCommitted}
}
