// internal/ziparchive/zip_consumer.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package ziparchive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/klauspost/compress/flate"
	"github.com/1vegedog/android-backup/internal/ioprim"
	"github.com/1vegedog/android-backup/internal/pathutil"
	"github.com/1vegedog/android-backup/internal/security"
	"github.com/1vegedog/android-backup/internal/util"
)

// ErrEOCDNotFound is returned when no End-of-Central-Directory signature
// is found within the bounded backward-scan window.
var ErrEOCDNotFound = errors.New("ziparchive: EOCD record not found")

// ErrBadCentralDirectory is returned when a central directory header's
// signature doesn't match, or the directory runs past EOF.
var ErrBadCentralDirectory = errors.New("ziparchive: malformed central directory")

const (
	eocdSignature = 0x06054b50
	cenSignature  = 0x02014b50
	eocdFixedSize = 22
	cenHeaderSize = 46
	maxBackScan   = 0x10000 + eocdFixedSize
	maxEntries    = 100000
	scanChunk     = 4096
)

// entry is the subset of a central directory record the consumer needs:
// enough to sanitize the name, tell directories from files, and seek to
// and decompress the corresponding local file header.
type entry struct {
	name              string
	isDir             bool
	method            uint16
	compressedSize    uint32
	uncompressedSize  uint32
	localHeaderOffset uint32
}

// listEntries scans backward from EOF for the EOCD record (bounded to the
// last ~64KiB+22 bytes, matching spec.md's "ZIP EOCD scan" testable
// property), then walks the central directory it points to, validating
// each 46-byte header's signature and skipping variable-length extra and
// comment fields by their declared lengths.
func listEntries(r io.ReaderAt, size int64) ([]entry, error) {
	if size < eocdFixedSize {
		return nil, ErrEOCDNotFound
	}

	searchStart := int64(0)
	if size > maxBackScan {
		searchStart = size - maxBackScan
	}

	var eocdOff int64 = -1
	buf := make([]byte, scanChunk+3)
	for pos := size; pos > searchStart; {
		want := pos - searchStart
		if want > scanChunk {
			want = scanChunk
		}
		chunkOff := pos - want
		// Re-read up to 3 bytes past the chunk so a signature straddling
		// the boundary with the previously scanned chunk is still seen.
		extra := size - pos
		if extra > 3 {
			extra = 3
		}
		if err := ioprim.PreadFull(r, chunkOff, buf[:want+extra]); err != nil {
			return nil, err
		}
		for i := int(want+extra) - 4; i >= 0; i-- {
			if binary.LittleEndian.Uint32(buf[i:i+4]) == eocdSignature {
				eocdOff = chunkOff + int64(i)
				break
			}
		}
		if eocdOff >= 0 {
			break
		}
		pos = chunkOff
	}
	if eocdOff < 0 {
		return nil, ErrEOCDNotFound
	}

	var eocd [eocdFixedSize]byte
	if err := ioprim.PreadFull(r, eocdOff, eocd[:]); err != nil {
		return nil, err
	}
	cdSize := binary.LittleEndian.Uint32(eocd[0x0C:])
	cdOffset := binary.LittleEndian.Uint32(eocd[0x10:])
	totalEnt := binary.LittleEndian.Uint16(eocd[0x0A:])

	if int64(cdOffset)+int64(cdSize) > size {
		return nil, ErrBadCentralDirectory
	}

	entries := make([]entry, 0, totalEnt)
	p := int64(cdOffset)
	end := int64(cdOffset) + int64(cdSize)
	for p < end {
		var hdr [cenHeaderSize]byte
		if err := ioprim.PreadFull(r, p, hdr[:]); err != nil {
			return nil, err
		}
		if binary.LittleEndian.Uint32(hdr[0:4]) != cenSignature {
			return nil, ErrBadCentralDirectory
		}
		method := binary.LittleEndian.Uint16(hdr[10:12])
		compressedSize := binary.LittleEndian.Uint32(hdr[20:24])
		uncompressedSize := binary.LittleEndian.Uint32(hdr[24:28])
		nameLen := binary.LittleEndian.Uint16(hdr[28:30])
		extraLen := binary.LittleEndian.Uint16(hdr[30:32])
		commentLen := binary.LittleEndian.Uint16(hdr[32:34])
		localHeaderOffset := binary.LittleEndian.Uint32(hdr[42:46])

		nameBuf := make([]byte, nameLen)
		if nameLen > 0 {
			if err := ioprim.PreadFull(r, p+cenHeaderSize, nameBuf); err != nil {
				return nil, err
			}
		}
		name := string(nameBuf)
		entries = append(entries, entry{
			name:              name,
			isDir:             len(name) > 0 && name[len(name)-1] == '/',
			method:            method,
			compressedSize:    compressedSize,
			uncompressedSize:  uncompressedSize,
			localHeaderOffset: localHeaderOffset,
		})

		p += int64(cenHeaderSize) + int64(nameLen) + int64(extraLen) + int64(commentLen)
		if len(entries) > maxEntries {
			return nil, fmt.Errorf("ziparchive: too many central directory entries (> %d)", maxEntries)
		}
	}
	return entries, nil
}

const localHeaderSize = 30

// extractTo decompresses the file data for e, located via its local file
// header, writing the uncompressed bytes to w.
func extractTo(r io.ReaderAt, e entry, w io.Writer) error {
	var lhdr [localHeaderSize]byte
	if err := ioprim.PreadFull(r, int64(e.localHeaderOffset), lhdr[:]); err != nil {
		return err
	}
	nameLen := binary.LittleEndian.Uint16(lhdr[26:28])
	extraLen := binary.LittleEndian.Uint16(lhdr[28:30])
	dataOff := int64(e.localHeaderOffset) + localHeaderSize + int64(nameLen) + int64(extraLen)

	sr := io.NewSectionReader(r, dataOff, int64(e.compressedSize))

	switch e.method {
	case 0: // stored
		_, err := ioprim.CopyAll(w, sr)
		return err
	case 8: // deflate
		fr := flate.NewReader(sr)
		defer fr.Close()
		_, err := ioprim.CopyAll(w, fr)
		return err
	default:
		return fmt.Errorf("ziparchive: unsupported compression method %d for %q", e.method, e.name)
	}
}

// Consumer drains an input stream into local staging storage and
// extracts it to a destination directory, applying ownership, mode, and
// security-label restoration to every entry.
type Consumer struct {
	StagingDir string
	Log        *util.Logger
	Labeler    security.Labeler
}

// Consume reads a ZIP stream from in, materializing it under baseDir.
// Every directory entry gets mode 0770 and every file mode 0600, owned by
// uid:uid, regardless of the modes recorded in the archive — this is by
// design (spec.md §8's ZIP round-trip testable property). Individual
// entry failures are accumulated; extraction continues so the caller can
// see all diagnostics, and the overall result is the logical AND of every
// entry's outcome. A malformed EOCD or central directory is immediately
// fatal.
func (c *Consumer) Consume(in io.Reader, baseDir string, uid int) error {
	if err := pathutil.EnsureDirAll(baseDir, 0770); err != nil {
		return fmt.Errorf("ziparchive: ensure base dir %q: %w", baseDir, err)
	}

	if err := os.MkdirAll(c.StagingDir, 0755); err != nil {
		return fmt.Errorf("ziparchive: ensure staging dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.StagingDir, "mm_inzip.*")
	if err != nil {
		return fmt.Errorf("ziparchive: create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	rr := &util.ReportingReader{R: in, Log: c.Log, Msg: "unzip spool"}
	recvBytes, err := ioprim.CopyAll(tmp, rr)
	if err != nil {
		return fmt.Errorf("ziparchive: spool input to staging: %w", err)
	}
	c.Log.Debug("unzip staging: received %d bytes -> %s", recvBytes, tmpPath)

	entries, err := listEntries(tmp, recvBytes)
	if err != nil {
		return fmt.Errorf("ziparchive: %w", err)
	}

	ok := true
	var files, bytesWritten uint64
	for _, e := range entries {
		rel, serr := pathutil.SanitizeRel(e.name)
		if serr != nil {
			c.Log.Warning("skip suspicious: %s", e.name)
			ok = false
			continue
		}

		if e.isDir {
			outDir := pathutil.Join(baseDir, rel)
			if err := pathutil.EnsureDirAll(outDir, 0770); err != nil {
				c.Log.Warning("ensure_dir_all(%s) failed: %v", outDir, err)
				ok = false
				continue
			}
			os.Chown(outDir, uid, uid)
			os.Chmod(outDir, 0770)
			c.Labeler.Restorecon(outDir)
			continue
		}

		outPath := pathutil.Join(baseDir, rel)
		if err := pathutil.EnsureDirAll(pathutil.ParentOf(outPath), 0770); err != nil {
			c.Log.Warning("ensure parent(%s) failed: %v", outPath, err)
			ok = false
			continue
		}

		of, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|syscall.O_NOFOLLOW, 0600)
		if err != nil {
			c.Log.Warning("open(%s) failed: %v", outPath, err)
			ok = false
			continue
		}
		if err := extractTo(tmp, e, of); err != nil {
			c.Log.Warning("extract(%s) failed: %v", outPath, err)
			ok = false
			of.Close()
			continue
		}
		of.Chown(uid, uid)
		of.Chmod(0600)
		of.Close()
		c.Labeler.Restorecon(outPath)

		files++
		bytesWritten += uint64(e.uncompressedSize)
		c.Log.Debug("unzipping: wrote %s len=%d", outPath, e.uncompressedSize)
	}

	c.Log.Verbose("UNZIP done ok=%v files=%d bytes=%d", ok, files, bytesWritten)
	if !ok {
		return fmt.Errorf("ziparchive: one or more entries failed to extract")
	}
	return nil
}
