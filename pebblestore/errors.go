package pebblestore

import (
	"errors"
	"fmt"

	"github.com/andreyvit/tupledb"
)

var (
	ErrClosed   = fmt.Errorf("pebblestore: database is closed: %w", tupledb.ErrClosed)
	ErrTxDone   = errors.New("pebblestore: transaction already committed or rolled back")
	ErrReadOnly = errors.New("pebblestore: transaction is read-only")
)
