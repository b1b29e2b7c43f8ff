// internal/ioprim/ioprim_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package ioprim

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriteReadFullRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []byte("hello, mirrormediad")
	if err := WriteFull(&buf, want); err != nil {
		t.Fatalf("WriteFull: %v", err)
	}
	got := make([]byte, len(want))
	if err := ReadFull(&buf, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReadFullShortIsError(t *testing.T) {
	r := bytes.NewReader([]byte("ab"))
	b := make([]byte, 4)
	if err := ReadFull(r, b); err == nil {
		t.Fatalf("expected error reading past EOF, got nil")
	}
}

func TestU16U32U64RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteU16(&buf, 0xBEEF); err != nil {
		t.Fatalf("WriteU16: %v", err)
	}
	if err := WriteU32(&buf, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	if err := WriteU64(&buf, 0x1122334455667788); err != nil {
		t.Fatalf("WriteU64: %v", err)
	}

	v16, err := ReadU16(&buf)
	if err != nil || v16 != 0xBEEF {
		t.Fatalf("ReadU16 = %x, %v, want 0xBEEF, nil", v16, err)
	}
	v32, err := ReadU32(&buf)
	if err != nil || v32 != 0xDEADBEEF {
		t.Fatalf("ReadU32 = %x, %v, want 0xDEADBEEF, nil", v32, err)
	}
	v64, err := ReadU64(&buf)
	if err != nil || v64 != 0x1122334455667788 {
		t.Fatalf("ReadU64 = %x, %v, want 0x1122334455667788, nil", v64, err)
	}
}

func TestU16LittleEndianByteOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteU16(&buf, 0x0102); err != nil {
		t.Fatalf("WriteU16: %v", err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{0x02, 0x01}) {
		t.Fatalf("got bytes %x, want little-endian 02 01", got)
	}
}

func TestCopyNExactAndShort(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewReader([]byte("0123456789"))
	if err := CopyN(&out, in, 5); err != nil {
		t.Fatalf("CopyN: %v", err)
	}
	if out.String() != "01234" {
		t.Fatalf("CopyN copied %q, want %q", out.String(), "01234")
	}

	out.Reset()
	in = bytes.NewReader([]byte("ab"))
	if err := CopyN(&out, in, 10); err == nil {
		t.Fatalf("CopyN past EOF: expected error, got nil")
	}
}

func TestCopyAllReturnsTotal(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewReader(bytes.Repeat([]byte("x"), CopyBufSize+17))
	n, err := CopyAll(&out, in)
	if err != nil {
		t.Fatalf("CopyAll: %v", err)
	}
	if n != int64(CopyBufSize+17) {
		t.Fatalf("CopyAll returned %d, want %d", n, CopyBufSize+17)
	}
	if out.Len() != CopyBufSize+17 {
		t.Fatalf("buffer holds %d bytes, want %d", out.Len(), CopyBufSize+17)
	}
}

func TestDiscardFullSkipsExactCount(t *testing.T) {
	in := bytes.NewReader([]byte("0123456789"))
	if err := DiscardFull(in, 4); err != nil {
		t.Fatalf("DiscardFull: %v", err)
	}
	rest, err := io.ReadAll(in)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(rest) != "456789" {
		t.Fatalf("remaining bytes = %q, want %q", rest, "456789")
	}
}

func TestPreadFullDoesNotDisturbOtherOffset(t *testing.T) {
	r := bytes.NewReader([]byte("0123456789"))
	b := make([]byte, 3)
	if err := PreadFull(r, 5, b); err != nil {
		t.Fatalf("PreadFull: %v", err)
	}
	if string(b) != "567" {
		t.Fatalf("PreadFull got %q, want %q", b, "567")
	}

	full, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll after PreadFull: %v", err)
	}
	if string(full) != "0123456789" {
		t.Fatalf("base reader offset was disturbed by PreadFull: got %q", full)
	}
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func TestCopyAllPropagatesHardError(t *testing.T) {
	var out bytes.Buffer
	wantErr := errors.New("boom")
	_, err := CopyAll(&out, errReader{wantErr})
	if !errors.Is(err, wantErr) {
		t.Fatalf("CopyAll err = %v, want %v", err, wantErr)
	}
}
