package tupledb

// Backend is the durable sorted key-value storage that holds committed
// pairs (bolt, in-memory, pebble, etc.). Keys are compared bytewise; the
// store encodes tuples so that byte order equals tuple order.
type Backend interface {
	// Begin starts a new transaction. A writable transaction sees its own
	// writes and makes them visible atomically on Commit.
	Begin(writable bool) (BackendTx, error)
	// Close closes the storage.
	Close() error
}

// BackendTx is a backend transaction. Read-only transactions read a
// consistent snapshot.
type BackendTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Get retrieves a value by key. Returns nil if not found. The returned
	// slice is only valid until the transaction ends.
	Get(key []byte) ([]byte, error)

	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key []byte) error

	// Range iterates over keys in [lower, upper) in ascending order, or
	// descending if reverse is set. A nil upper means unbounded.
	Range(lower, upper []byte, reverse bool) BackendIterator

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple
	// times, and after Commit.
	Rollback() error
}

// BackendIterator walks a key range. Key and Value are only valid until
// the next call to Next.
type BackendIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// errIterator is returned by backends that fail to open an iterator.
type errIterator struct {
	err error
}

func (it errIterator) Next() bool    { return false }
func (it errIterator) Key() []byte   { return nil }
func (it errIterator) Value() []byte { return nil }
func (it errIterator) Err() error    { return it.err }
func (it errIterator) Close() error  { return nil }

// ErrIterator wraps err into an iterator that yields nothing and reports
// err. Meant for Backend implementations.
func ErrIterator(err error) BackendIterator {
	return errIterator{err}
}
