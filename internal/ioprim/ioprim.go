// internal/ioprim/ioprim.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package ioprim provides the full read/write loops and fixed-width
// little-endian integer codecs that every archive engine in this module is
// built on. No function here allocates proportional to the size of the
// data being moved; each copy loop uses its own fixed CopyBufSize buffer.
package ioprim

import (
	"encoding/binary"
	"errors"
	"io"
)

// CopyBufSize is the buffer size used for file <-> descriptor copies
// throughout the archive engines, matching the original implementation's
// 256 KiB staging buffer.
const CopyBufSize = 256 * 1024

var ErrShortWrite = errors.New("ioprim: short write")

// WriteFull writes all of b to w, retrying on partial writes. It returns
// an error only on a hard write error.
func WriteFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// ReadFull reads exactly len(b) bytes into b, failing if EOF is reached
// before that. It is a thin wrapper around io.ReadFull kept here so every
// caller goes through one name, matching the original's read_fully/
// write_fully pairing.
func ReadFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	return err
}

// PreadFull reads exactly len(b) bytes from r starting at off, used by the
// ZIP central-directory scanner which needs positioned reads without
// disturbing any other reader's offset.
func PreadFull(r io.ReaderAt, off int64, b []byte) error {
	_, err := r.ReadAt(b, off)
	return err
}

// DiscardFull reads and discards exactly n bytes from r, used to keep an
// MM01 stream aligned when an entry is rejected but its declared payload
// must still be consumed.
func DiscardFull(r io.Reader, n uint64) error {
	var buf [CopyBufSize]byte
	for n > 0 {
		want := uint64(len(buf))
		if n < want {
			want = n
		}
		if err := ReadFull(r, buf[:want]); err != nil {
			return err
		}
		n -= want
	}
	return nil
}

// CopyN copies exactly n bytes from r to w using a bounded buffer,
// returning an error on any short read or short write.
func CopyN(w io.Writer, r io.Reader, n uint64) error {
	var buf [CopyBufSize]byte
	for n > 0 {
		want := uint64(len(buf))
		if n < want {
			want = n
		}
		if err := ReadFull(r, buf[:want]); err != nil {
			return err
		}
		if err := WriteFull(w, buf[:want]); err != nil {
			return err
		}
		n -= want
	}
	return nil
}

// CopyAll copies from r to w until EOF using a bounded buffer, returning
// the total byte count copied.
func CopyAll(w io.Writer, r io.Reader) (int64, error) {
	var buf [CopyBufSize]byte
	var total int64
	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			if werr := WriteFull(w, buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Little-endian fixed-width codecs. These are thin wrappers around
// encoding/binary kept under ioprim so every record-stream reader/writer
// in the module uses the same names for the same eight operations.

func WriteU8(w io.Writer, v uint8) error  { return WriteFull(w, []byte{v}) }
func WriteU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return WriteFull(w, b[:])
}
func WriteU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return WriteFull(w, b[:])
}
func WriteU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return WriteFull(w, b[:])
}

func ReadU8(r io.Reader) (uint8, error) {
	var b [1]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
func ReadU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}
func ReadU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
func ReadU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
