package utils

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestHandlePanic(t *testing.T) {
	var got error
	func() {
		defer HandlePanic(func(err error) { got = err })
		panic("boom")
	}()
	if got == nil || got.Error() != "boom" {
		t.Fatalf("got %v, want boom", got)
	}

	sentinel := errors.New("sentinel")
	func() {
		defer HandlePanic(func(err error) { got = err })
		panic(sentinel)
	}()
	if !errors.Is(got, sentinel) {
		t.Fatalf("got %v, want sentinel", got)
	}
}

func TestReaderIntegers(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xaa}))
	v, err := r.ReadUint32BE(3)
	if err != nil || v != 0x010203 {
		t.Fatalf("ReadUint32BE = %x, %v", v, err)
	}
	v, err = r.ReadUint32LE(3)
	if err != nil || v != 0x060504 {
		t.Fatalf("ReadUint32LE = %x, %v", v, err)
	}
	if _, err := r.ReadN(2); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadN err = %v, want unexpected EOF", err)
	}
}

func TestPutUint24BE(t *testing.T) {
	bs := make([]byte, 3)
	PutUint24BE(bs, 0xabcdef)
	if !bytes.Equal(bs, []byte{0xab, 0xcd, 0xef}) {
		t.Fatalf("PutUint24BE = % x", bs)
	}
}
