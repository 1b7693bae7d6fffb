package tupledb

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func TestUsersScenario(t *testing.T) {
	store := setup(t, Options{})

	t1 := must(store.Transact())
	ensureNoErr(t, t1.Set(Tuple{"users", 1}, map[string]any{"name": "a"}))
	ensureNoErr(t, t1.Commit())

	deepEqual(t, must(store.Scan(ScanArgs{Prefix: Tuple{"users"}})), []TupleValuePair{
		{Tuple{"users", 1.0}, map[string]any{"name": "a"}},
	})

	t2 := must(store.Transact())
	v, ok, err := t2.Get(Tuple{"users", 1})
	ensureNoErr(t, err)
	deepEqual(t, ok, true)
	deepEqual(t, v, Value(map[string]any{"name": "a"}))

	t3 := must(store.Transact())
	ensureNoErr(t, t3.Set(Tuple{"users", 1}, map[string]any{"name": "b"}))
	ensureNoErr(t, t3.Commit())

	ensureNoErr(t, t2.Set(Tuple{"users", 1}, map[string]any{"name": "c"}))
	err = t2.Commit()
	errIs(t, err, ErrConflict)
	deepEqual(t, t2.State(), TxAborted)

	var ce *ConflictError
	if errors.As(err, &ce) {
		deepEqual(t, ce.TxID, t2.ID())
		deepEqual(t, ce.ConflictingTxID, t3.ID())
		deepEqual(t, ce.Tuple, Tuple{"users", 1.0})
	} else {
		t.Errorf("** err = %T, wanted *ConflictError", err)
	}

	v, ok, err = store.Get(Tuple{"users", 1})
	ensureNoErr(t, err)
	deepEqual(t, ok, true)
	deepEqual(t, v, Value(map[string]any{"name": "b"}))
}

func TestConflictOnScan(t *testing.T) {
	store := setup(t, Options{})
	commitSets(t, store, Tuple{"a"}, 1, Tuple{"b"}, 2)

	t1 := must(store.Transact())
	deepEqual(t, len(must(t1.Scan(ScanArgs{Gte: Tuple{"a"}, Lte: Tuple{"c"}}))), 2)
	ensureNoErr(t, t1.Set(Tuple{"sum"}, 3))

	// a brand new tuple inside the scanned range is a phantom
	commitSets(t, store, Tuple{"bb"}, 5)

	errIs(t, t1.Commit(), ErrConflict)
	exists, err := store.Exists(Tuple{"sum"})
	ensureNoErr(t, err)
	deepEqual(t, exists, false)
}

func TestDisjointCommits(t *testing.T) {
	store := setup(t, Options{})
	commitSets(t, store, Tuple{"a"}, 1, Tuple{"b"}, 2)

	t1 := must(store.Transact())
	_, _, err := t1.Get(Tuple{"a"})
	ensureNoErr(t, err)
	must(t1.Scan(ScanArgs{Prefix: Tuple{"x"}}))
	ensureNoErr(t, t1.Set(Tuple{"a"}, 10))

	commitSets(t, store, Tuple{"b"}, 20, Tuple{"y", 1}, true)
	ensureNoErr(t, t1.Commit())
	deepEqual(t, t1.State(), TxCommitted)

	deepEqual(t, must(store.Scan(ScanArgs{})), []TupleValuePair{
		{Tuple{"a"}, 10.0},
		{Tuple{"b"}, 20.0},
		{Tuple{"y", 1.0}, true},
	})
}

func TestWriteOnlyTransactionsNeverConflict(t *testing.T) {
	store := setup(t, Options{})
	t1 := must(store.Transact())
	t2 := must(store.Transact())
	ensureNoErr(t, t1.Set(Tuple{"k"}, 1))
	ensureNoErr(t, t2.Set(Tuple{"k"}, 2))
	ensureNoErr(t, t2.Commit())
	ensureNoErr(t, t1.Commit())
	deepEqual(t, must2(store.Get(Tuple{"k"})), Value(1.0))
}

func TestIdempotentRemoval(t *testing.T) {
	store := setup(t, Options{})
	commitSets(t, store, Tuple{"keep"}, "x")

	deepEqual(t, must(store.Exists(Tuple{"ghost"})), false)
	tx := must(store.Transact())
	ensureNoErr(t, tx.Remove(Tuple{"ghost"}))
	ensureNoErr(t, tx.Commit())
	deepEqual(t, must(store.Exists(Tuple{"ghost"})), false)
	deepEqual(t, must(store.Scan(ScanArgs{})), []TupleValuePair{{Tuple{"keep"}, "x"}})
}

func TestStoreCommit(t *testing.T) {
	store := setup(t, Options{})
	ensureNoErr(t, store.Commit(Writes{
		Set:    []TupleValuePair{{Tuple{"a"}, 1}, {Tuple{"b"}, 2}},
		Remove: []Tuple{{"b"}, {"c"}},
	}, 0, nil))
	deepEqual(t, must(store.Scan(ScanArgs{})), []TupleValuePair{
		{Tuple{"a"}, 1.0},
		{Tuple{"b"}, 2.0},
	})

	errIs(t, store.Commit(Writes{}, 0, []Bounds{pointBounds(Tuple{"a"})}), ErrInvalidArgument)
	errIs(t, store.Commit(Writes{}, 1<<40, nil), ErrInvalidArgument)
	errIs(t, store.Commit(Writes{Set: []TupleValuePair{{Tuple{"a", Max}, 1}}}, 0, nil), ErrInvalidArgument)

	// reads recorded by a transaction can be validated through the low-level entry point
	tx := must(store.Transact())
	must(tx.Scan(ScanArgs{Prefix: Tuple{"a"}}))
	commitSets(t, store, Tuple{"a", "child"}, true)
	errIs(t, store.Commit(Writes{Set: []TupleValuePair{{Tuple{"z"}, 1}}}, tx.ID(), tx.Reads()), ErrConflict)
	ensureNoErr(t, store.Commit(Writes{Set: []TupleValuePair{{Tuple{"z"}, 1}}}, tx.ID(), []Bounds{pointBounds(Tuple{"b"})}))
	tx.Discard()
}

func TestSnapshot(t *testing.T) {
	store := setup(t, Options{})
	commitSets(t, store, Tuple{"a"}, 1)

	snap := must(store.Snapshot())
	commitSets(t, store, Tuple{"a"}, 2, Tuple{"b"}, 3)

	deepEqual(t, must2(snap.Get(Tuple{"a"})), Value(1.0))
	deepEqual(t, must(snap.Exists(Tuple{"b"})), false)
	deepEqual(t, len(must(snap.Scan(ScanArgs{}))), 1)
	ensureNoErr(t, snap.Close())
	ensureNoErr(t, snap.Close())

	_, _, err := snap.Get(Tuple{"a"})
	errIs(t, err, ErrInvalidState)
	deepEqual(t, must2(store.Get(Tuple{"a"})), Value(2.0))
}

func TestClose(t *testing.T) {
	store := setup(t, Options{})
	tx := must(store.Transact())
	ensureNoErr(t, tx.Set(Tuple{"a"}, 1))
	reader := must(store.Transact())
	must(reader.Exists(Tuple{"a"}))
	ensureNoErr(t, store.Close())

	errIs(t, store.Close(), ErrClosed)
	errIs(t, tx.Commit(), ErrClosed)
	deepEqual(t, tx.State(), TxAborted)
	_, _, err := reader.Get(Tuple{"a"})
	errIs(t, err, ErrClosed)
	reader.Discard()
	deepEqual(t, store.Stats().OpenTransactions, 0)
	deepEqual(t, store.Stats().Aborts, uint64(1))

	_, err = store.Transact()
	errIs(t, err, ErrInvalidState)
	_, _, err = store.Get(Tuple{"a"})
	errIs(t, err, ErrClosed)
	errIs(t, store.Commit(Writes{}, 0, nil), ErrClosed)
}

func TestOpenOptions(t *testing.T) {
	_, err := Open(nil, Options{})
	errIs(t, err, ErrInvalidArgument)
	_, err = Open(NewMemBackend(), Options{MaxIndexerIterations: -1})
	errIs(t, err, ErrInvalidArgument)
	_, err = Open(NewMemBackend(), Options{MaxConflictHistory: -1})
	errIs(t, err, ErrInvalidArgument)

	store := must(Open(NewMemBackend(), Options{}))
	deepEqual(t, store.maxIndexerIterations, DefaultMaxIndexerIterations)
	deepEqual(t, store.history.maxRecords, DefaultMaxConflictHistory)
}

func TestHistoryPruning(t *testing.T) {
	store := setup(t, Options{})
	for i := 0; i < 5; i++ {
		commitSets(t, store, Tuple{"n", i}, i)
	}
	// nobody can conflict with those commits any more
	deepEqual(t, store.Stats().HistoryRecords, 0)

	old := must(store.Transact())
	must(old.Scan(ScanArgs{Prefix: Tuple{"n"}}))
	for i := 0; i < 3; i++ {
		commitSets(t, store, Tuple{"m", i}, i)
	}
	st := store.Stats()
	deepEqual(t, st.HistoryRecords, 3)
	deepEqual(t, st.HistoryKeys, 3)
	deepEqual(t, st.OpenTransactions, 1)

	old.Discard()
	commitSets(t, store, Tuple{"m", 99}, 99)
	deepEqual(t, store.Stats().HistoryRecords, 0)
	deepEqual(t, store.Stats().OpenTransactions, 0)
	errIs(t, old.Commit(), ErrInvalidState)
}

func TestHistoryCapForcesConflict(t *testing.T) {
	store := setup(t, Options{MaxConflictHistory: 2})

	old := must(store.Transact())
	_, _, err := old.Get(Tuple{"untouched"})
	ensureNoErr(t, err)

	for i := 0; i < 3; i++ {
		commitSets(t, store, Tuple{"other", i}, i)
	}
	deepEqual(t, store.Stats().HistoryRecords, 2)

	ensureNoErr(t, old.Set(Tuple{"x"}, 1))
	err = old.Commit()
	errIs(t, err, ErrConflict)
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.ConflictingTxID != 0 {
		t.Errorf("** err = %v, wanted truncated-history conflict", err)
	}
}

func TestStats(t *testing.T) {
	store := setup(t, Options{})
	commitSets(t, store, Tuple{"a"}, 1)

	t1 := must(store.Transact())
	must(t1.Exists(Tuple{"a"}))
	ensureNoErr(t, t1.Set(Tuple{"a"}, 2))
	commitSets(t, store, Tuple{"a"}, 3)
	errIs(t, t1.Commit(), ErrConflict)

	st := store.Stats()
	deepEqual(t, st.Commits, uint64(2))
	deepEqual(t, st.Conflicts, uint64(1))
	deepEqual(t, st.Aborts, uint64(1))
	deepEqual(t, st.OpenTransactions, 0)
	if st.LastTxID < t1.ID() {
		t.Errorf("** LastTxID = %d, wanted >= %d", st.LastTxID, t1.ID())
	}
}

func TestDump(t *testing.T) {
	store := setup(t, Options{})
	commitSets(t, store, Tuple{"b", 1}, map[string]any{"x": []any{true}}, Tuple{"a"}, nil)

	var buf bytes.Buffer
	ensureNoErr(t, store.Dump(&buf))
	deepEqual(t, buf.String(), strings.Join([]string{
		`{"tuple":["a"],"value":null}`,
		`{"tuple":["b",1],"value":{"x":[true]}}`,
		``,
	}, "\n"))
}

func TestDescribeOpenTxns(t *testing.T) {
	store := setup(t, Options{Verbose: true})
	deepEqual(t, store.DescribeOpenTxns(), "NO OPEN TRANSACTIONS")
	tx := must(store.Transact())
	defer tx.Discard()
	if s := store.DescribeOpenTxns(); !strings.HasPrefix(s, "1 OPEN TRANSACTIONS") {
		t.Errorf("** DescribeOpenTxns = %q", s)
	}
}

func setup(t testing.TB, opt Options) *Store {
	t.Helper()

	var backend Backend
	if testing.Short() {
		backend = NewMemBackend()
	} else {
		dbFile := filepath.Join(t.TempDir(), "tupledb_test.db")
		t.Logf("DB: %s", dbFile)
		backend = must(OpenBolt(dbFile, BoltOptions{IsTesting: true}))
	}
	store := must(Open(backend, opt))
	t.Cleanup(func() { store.Close() })
	return store
}

// commitSets commits tuple/value pairs in a single transaction.
func commitSets(t testing.TB, store *Store, pairs ...any) {
	t.Helper()
	tx := must(store.Transact())
	for i := 0; i < len(pairs); i += 2 {
		ensureNoErr(t, tx.Set(pairs[i].(Tuple), pairs[i+1]))
	}
	ensureNoErr(t, tx.Commit())
}

func must2[T any](v T, ok bool, err error) T {
	if err != nil {
		panic(err)
	}
	if !ok {
		panic("not found")
	}
	return v
}

func ensureNoErr(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func errIs(t testing.TB, err, target error) {
	if !errors.Is(err, target) {
		t.Helper()
		t.Errorf("** got error %v, wanted %v", err, target)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}
