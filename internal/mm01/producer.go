// internal/mm01/producer.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package mm01 implements the custom tagged record stream producer (C6)
// and consumer (C7) of spec.md §4.6-4.7: a raw, uncompressed archive
// format designed so the consumer never needs seekability on its input.
package mm01

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/1vegedog/android-backup/internal/ioprim"
	"github.com/1vegedog/android-backup/internal/pathutil"
	"github.com/1vegedog/android-backup/internal/util"
)

// Magic is the fixed 4-byte prefix of every MM01 stream.
const Magic = "MM01"

// Record tags.
const (
	TagDir  = 'D'
	TagFile = 'F'
	TagEnd  = 'E'
)

// Producer walks a directory tree and emits it as an MM01 record stream.
type Producer struct {
	Log *util.Logger
}

// Produce writes the magic, a depth-first walk of baseDir as D/F records,
// and a terminating E record to out. Directories that fail to open are
// logged and skipped (tolerated); a read failure mid-payload for a
// regular file aborts the whole stream since the declared payload length
// would otherwise desync the format.
func (p *Producer) Produce(baseDir string, out io.Writer) error {
	if err := ioprim.WriteFull(out, []byte(Magic)); err != nil {
		return fmt.Errorf("mm01: write magic: %w", err)
	}
	if err := p.walkDir(out, baseDir, "", 0770); err != nil {
		return err
	}
	return writeRecord(out, TagEnd, "", 0, 0, 0)
}

func (p *Producer) walkDir(out io.Writer, baseDir, rel string, dirMode uint32) error {
	dir := baseDir
	if rel != "" {
		dir = pathutil.Join(baseDir, rel)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		p.Log.Warning("opendir(%s) failed: %v", dir, err)
		return nil
	}

	if err := writeRecord(out, TagDir, rel, dirMode, 0, 0); err != nil {
		return fmt.Errorf("mm01: write dir record for %q: %w", rel, err)
	}

	for _, de := range entries {
		childRel := de.Name()
		if rel != "" {
			childRel = rel + "/" + de.Name()
		}
		childFull := path.Join(dir, de.Name())

		info, err := de.Info()
		if err != nil {
			p.Log.Warning("lstat(%s) failed: %v", childFull, err)
			continue
		}

		switch {
		case info.IsDir():
			if err := p.walkDir(out, baseDir, childRel, dirMode); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := p.sendFile(out, childRel, childFull, info); err != nil {
				return err
			}
		default:
			// Symlinks, devices, fifos, and sockets are silently skipped.
		}
	}
	return nil
}

func (p *Producer) sendFile(out io.Writer, rel, full string, info os.FileInfo) error {
	f, err := os.Open(full)
	if err != nil {
		p.Log.Warning("open(%s) failed: %v", full, err)
		return nil
	}
	defer f.Close()

	size := uint64(info.Size())
	mode := uint32(info.Mode().Perm())
	mtime := uint64(info.ModTime().Unix())

	if err := writeRecord(out, TagFile, rel, mode, mtime, size); err != nil {
		return fmt.Errorf("mm01: write file record for %q: %w", rel, err)
	}
	if err := ioprim.CopyN(out, f, size); err != nil {
		return fmt.Errorf("mm01: read payload for %q: %w", rel, err)
	}
	return nil
}

func writeRecord(out io.Writer, tag byte, rel string, mode uint32, mtime, size uint64) error {
	if err := ioprim.WriteU8(out, tag); err != nil {
		return err
	}
	if err := ioprim.WriteU16(out, uint16(len(rel))); err != nil {
		return err
	}
	if err := ioprim.WriteU32(out, mode); err != nil {
		return err
	}
	if err := ioprim.WriteU64(out, mtime); err != nil {
		return err
	}
	if err := ioprim.WriteU64(out, size); err != nil {
		return err
	}
	return ioprim.WriteFull(out, []byte(rel))
}
