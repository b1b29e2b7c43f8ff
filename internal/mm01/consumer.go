// internal/mm01/consumer.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package mm01

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/1vegedog/android-backup/internal/ioprim"
	"github.com/1vegedog/android-backup/internal/pathutil"
	"github.com/1vegedog/android-backup/internal/security"
	"github.com/1vegedog/android-backup/internal/util"
)

// ErrBadMagic is returned when the stream doesn't begin with "MM01".
var ErrBadMagic = errors.New("mm01: bad stream magic")

// ErrUnknownTag is returned for a record tag outside {D,F,E}; it is fatal.
var ErrUnknownTag = errors.New("mm01: unknown record tag")

// ErrPartialFailure is returned when the stream was consumed to
// completion but one or more individual entries failed to restore —
// spec.md freezes this as best-effort restore with the outcome surfaced
// as ERR, not as an all-or-nothing rollback.
var ErrPartialFailure = errors.New("mm01: one or more entries failed to restore")

// Consumer materializes an MM01 stream under realRoot, applying
// ownership, mode, and security-label restoration to every entry.
type Consumer struct {
	Log     *util.Logger
	Labeler security.Labeler
}

// dirMode returns the mode a directory at depth relEmpty should receive:
// internal trees always get 0700; external-data trees get setgid+group-
// write (02770) at the top and setgid-only (02700) for every descendant.
// The setgid bit is os.ModeSetgid, a distinct flag bit in os.FileMode's
// representation — it is not encoded in the low-order permission bits the
// way a raw POSIX chmod numeric literal encodes it.
func dirMode(external, relEmpty bool) os.FileMode {
	if !external {
		return 0700
	}
	if relEmpty {
		return os.ModeSetgid | 0770
	}
	return os.ModeSetgid | 0700
}

// Consume reads an MM01 stream from in and restores it under realRoot,
// owned by uid:gid. Unsafe relative paths are skipped (their payload
// still drained to keep the stream aligned); per-entry filesystem
// failures skip that entry (payload drained) and mark the overall result
// as failure, but the stream continues until the terminating E record. A
// short read within a declared payload is always fatal, since recovering
// alignment afterward isn't possible.
func (c *Consumer) Consume(in io.Reader, realRoot string, external bool, uid, gid int) error {
	if err := pathutil.EnsureDirAll(realRoot, 0700); err != nil {
		return fmt.Errorf("mm01: ensure root %q: %w", realRoot, err)
	}

	var magic [4]byte
	if err := ioprim.ReadFull(in, magic[:]); err != nil || !bytes.Equal(magic[:], []byte(Magic)) {
		if err != nil {
			return fmt.Errorf("mm01: read magic: %w", err)
		}
		return ErrBadMagic
	}

	ok := true
	var dirCount, fileCount, byteCount uint64

	for {
		tag, pathLen, mode, _, size, err := readHeader(in)
		if err != nil {
			return fmt.Errorf("mm01: read record header: %w", err)
		}

		if tag == TagEnd {
			c.Log.Verbose("restore done dirs=%d files=%d bytes=%d", dirCount, fileCount, byteCount)
			break
		}

		relRaw := ""
		if pathLen > 0 {
			buf := make([]byte, pathLen)
			if err := ioprim.ReadFull(in, buf); err != nil {
				return fmt.Errorf("mm01: read entry path: %w", err)
			}
			relRaw = string(buf)
		}

		rel, serr := pathutil.SanitizeRel(relRaw)
		if serr != nil {
			c.Log.Warning("skip suspicious rel=%s", relRaw)
			ok = false
			if tag == TagFile {
				if err := ioprim.DiscardFull(in, size); err != nil {
					return fmt.Errorf("mm01: drain rejected payload: %w", err)
				}
			}
			continue
		}

		outPath := realRoot
		if rel != "" {
			outPath = pathutil.Join(realRoot, rel)
		}

		switch tag {
		case TagDir:
			dm := dirMode(external, rel == "")
			if err := pathutil.EnsureDirAll(outPath, dm); err != nil {
				c.Log.Warning("ensure_dir_all(%s) failed: %v", outPath, err)
				ok = false
				continue
			}
			os.Chown(outPath, uid, gid)
			os.Chmod(outPath, dm)
			c.Labeler.Restorecon(outPath)
			dirCount++

		case TagFile:
			fileMode := os.FileMode(mode & 0777)
			if fileMode == 0 {
				fileMode = 0600
			}
			parent := pathutil.ParentOf(outPath)
			parentMode := dirMode(external, parent == realRoot)
			if err := pathutil.EnsureDirAll(parent, parentMode); err != nil {
				c.Log.Warning("ensure parent(%s) failed: %v", parent, err)
				ok = false
				if err := ioprim.DiscardFull(in, size); err != nil {
					return fmt.Errorf("mm01: drain payload after parent failure: %w", err)
				}
				continue
			}
			os.Chown(parent, uid, gid)
			os.Chmod(parent, parentMode)

			of, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|syscall.O_NOFOLLOW, fileMode)
			if err != nil {
				c.Log.Warning("open(%s) failed: %v", outPath, err)
				ok = false
				if err := ioprim.DiscardFull(in, size); err != nil {
					return fmt.Errorf("mm01: drain payload after open failure: %w", err)
				}
				continue
			}

			if err := ioprim.CopyN(of, in, size); err != nil {
				of.Close()
				return fmt.Errorf("mm01: read file payload for %q: %w", rel, err)
			}

			of.Chown(uid, gid)
			of.Chmod(fileMode)
			of.Close()
			c.Labeler.Restorecon(outPath)

			fileCount++
			byteCount += size
			c.Log.Debug("restored %s mode=%o size=%d", outPath, fileMode, size)

		default:
			return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
		}
	}

	if !ok {
		return ErrPartialFailure
	}
	return nil
}

func readHeader(in io.Reader) (tag byte, pathLen uint16, mode uint32, mtime, size uint64, err error) {
	t, err := ioprim.ReadU8(in)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	pl, err := ioprim.ReadU16(in)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	md, err := ioprim.ReadU32(in)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	mt, err := ioprim.ReadU64(in)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	sz, err := ioprim.ReadU64(in)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	return t, pl, md, mt, sz, nil
}
