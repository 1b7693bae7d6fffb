package tupledb

import (
	"fmt"
	"strings"
)

type (
	// Operation is a single applied mutation, as seen by indexers.
	Operation struct {
		Type  OpType
		Tuple Tuple
		Value Value // zero for removes

		// Prev is the value stored before this operation, valid if HasPrev.
		Prev    Value
		HasPrev bool
	}

	OpType int
)

const (
	OpSet    OpType = 1
	OpRemove OpType = 2
)

func (op Operation) IsSet() bool {
	return op.Type == OpSet
}

func (op Operation) IsRemove() bool {
	return op.Type == OpRemove
}

func (op Operation) String() string {
	var buf strings.Builder
	buf.WriteString(op.Type.String())
	buf.WriteByte(' ')
	buf.WriteString(op.Tuple.String())
	if op.Type == OpSet {
		buf.WriteString(" = ")
		buf.WriteString(loggableValue(op.Value))
	}
	if op.HasPrev {
		buf.WriteString(" (was ")
		buf.WriteString(loggableValue(op.Prev))
		buf.WriteByte(')')
	}
	return buf.String()
}

func (v OpType) String() string {
	switch v {
	case OpSet:
		return "set"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}
