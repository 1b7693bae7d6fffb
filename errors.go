package tupledb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrFixedPointExceeded = errors.New("indexers did not reach a fixed point")
	ErrIndexerFailure     = errors.New("indexer failed")
	ErrClosed             = fmt.Errorf("store closed: %w", ErrInvalidState)
)

// ArgumentError reports a rejected tuple, value or scan argument.
// It matches ErrInvalidArgument.
type ArgumentError struct {
	Tuple Tuple
	Msg   string
	Err   error
}

func argErrf(tup Tuple, err error, format string, args ...any) error {
	return &ArgumentError{tup, fmt.Sprintf(format, args...), err}
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

func (e *ArgumentError) Error() string {
	var buf strings.Builder
	buf.WriteString("invalid argument")
	if e.Tuple != nil {
		buf.WriteByte(' ')
		buf.WriteString(e.Tuple.String())
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// ConflictError is returned by commit when a tuple written by a transaction
// committed after TxID falls into one of the recorded read bounds.
type ConflictError struct {
	TxID            TxID
	ConflictingTxID TxID // zero when the history no longer covers TxID
	Tuple           Tuple
	Bounds          Bounds
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) Error() string {
	if e.ConflictingTxID == 0 {
		return fmt.Sprintf("conflict: tx %d: conflict history truncated past its snapshot", e.TxID)
	}
	return fmt.Sprintf("conflict: tx %d read %v, tx %d wrote %v", e.TxID, e.Bounds, e.ConflictingTxID, e.Tuple)
}

// IndexerError wraps an error returned (or a panic raised) by an indexer.
// It matches ErrIndexerFailure.
type IndexerError struct {
	Index int
	Op    Operation
	Err   error
}

func (e *IndexerError) Is(target error) bool {
	return target == ErrIndexerFailure
}

func (e *IndexerError) Unwrap() error {
	return e.Err
}

func (e *IndexerError) Error() string {
	return fmt.Sprintf("indexer #%d on %v: %v", e.Index, e.Op, e.Err)
}

func stateErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// DataError reports stored bytes that cannot be decoded.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}
