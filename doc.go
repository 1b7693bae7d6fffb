/*
Package tupledb implements a transactional ordered key-value store whose keys
are tuples of JSON-like values, on top of any sorted byte store (Bolt, Pebble,
or memory).

We implement:

1. Tuples and values with a total order, plus Min and Max sentinels for open
scan ranges.

2. Transactions with read-your-writes, validated optimistically on commit:
every read records its Bounds, and commit fails with ErrConflict if a
transaction committed in the meantime wrote into any of them.

3. Indexers, synchronous callbacks that see every applied operation inside the
commit and derive further writes, until nothing changes.

# Technical Details

**Transaction IDs.**
A single monotonic clock issues transaction IDs and commit stamps. A
transaction is checked against the write sets of commits stamped after its ID.
The store keeps those write sets until no open transaction can need them.

Each transaction reads from a snapshot of the committed state taken when it
began, so it never observes half of another commit. A commit is in the
snapshot exactly when its stamp is below the transaction's ID.

**Commits** are serialized by a store-wide mutex. Commit-time validation of
recorded reads makes the result serializable.

## Binary encoding

**Key encoding**.
Tuples are encoded so that bytewise order equals tuple order. Each value starts
with a tag byte:

	0x00  Min
	0x01  end of array or object
	0x02  object entry
	0x03  null
	0x04  false
	0x05  true
	0x06  number: IEEE-754 bits, big-endian, sign-flipped for ordering
	0x07  string: 0x00 escaped as 0x00 0x01, terminated by 0x00 0x00
	0x08  array: values, then 0x01
	0x09  object: (0x02 key value)* in key order, then 0x01
	0xFF  Max

A tuple is the concatenation of its values, so a prefix sorts before all of its
extensions, and prefix+[Max] bounds them from above.

**Value encoding**: msgpack with sorted map keys, so that equal values have
equal bytes.
*/
package tupledb
