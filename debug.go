package tupledb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

type dumpLine struct {
	Tuple Tuple `json:"tuple"`
	Value Value `json:"value"`
}

// Dump writes every stored pair in tuple order, one JSON object per line.
func (s *Store) Dump(w io.Writer) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	defer snap.Close()
	return snap.Dump(w)
}

func (snap *Snapshot) Dump(w io.Writer) error {
	if snap.closed {
		return stateErrf("snapshot closed")
	}
	bw := bufio.NewWriter(w)
	it := snap.btx.Range(nil, nil, false)
	defer it.Close()
	for it.Next() {
		pair, err := decodePair(it.Key(), it.Value())
		if err != nil {
			fmt.Fprintf(bw, "** ERROR: %s: %v\n", hexstr(it.Key()), err)
			continue
		}
		raw, err := json.Marshal(dumpLine{pair.Tuple, pair.Value})
		if err != nil {
			return err
		}
		bw.Write(raw)
		bw.WriteByte('\n')
	}
	if err := it.Err(); err != nil {
		return err
	}
	return bw.Flush()
}
