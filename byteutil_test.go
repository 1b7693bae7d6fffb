package tupledb

import (
	"reflect"
	"testing"
)

func TestBytesBuilder_Basics(t *testing.T) {
	var bb bytesBuilder
	_, _ = bb.Write([]byte{1, 2})
	_ = bb.WriteByte(3)
	_, _ = bb.WriteString("ab")

	if !reflect.DeepEqual(bb.Buf, []byte{1, 2, 3, 'a', 'b'}) {
		t.Fatalf("bb.Buf = %x, wanted 010203 6162", bb.Buf)
	}
	if cap(bb.Buf) < 16 {
		t.Fatalf("cap(bb.Buf) = %d, wanted >= 16", cap(bb.Buf))
	}
}

func TestByteUtil_AppendHelpers(t *testing.T) {
	buf := appendUint64(nil, 0x0102030405060708)
	buf = appendUint8(buf, 0xFF)
	buf = appendRaw(buf, []byte{0xAA, 0xBB})
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0xFF, 0xAA, 0xBB}
	if !reflect.DeepEqual(buf, want) {
		t.Fatalf("buf = %x, wanted %x", buf, want)
	}
}

func TestEnsureCapacity(t *testing.T) {
	orig := make([]byte, 3, 4)
	copy(orig, []byte{7, 8, 9})

	if buf := ensureCapacity(orig, 4); &buf[0] != &orig[0] {
		t.Fatalf("ensureCapacity reallocated a large enough buffer")
	}

	buf := ensureCapacity(orig, 40)
	if cap(buf) != 64 {
		t.Fatalf("cap = %d, wanted 64", cap(buf))
	}
	if !reflect.DeepEqual(buf, []byte{7, 8, 9}) {
		t.Fatalf("buf = %x, wanted 070809", buf)
	}

	off, grown := grow(buf, 2)
	if off != 3 || len(grown) != 5 {
		t.Fatalf("grow = (%d, len %d), wanted (3, len 5)", off, len(grown))
	}
}
