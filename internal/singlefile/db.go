// internal/singlefile/db.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package singlefile implements the single-file database pass-through
// (C8): a raw byte copy between a fixed file path and the supplied
// descriptor in either direction, with atomic replace on restore.
package singlefile

import (
	"fmt"
	"io"
	"os"

	"github.com/1vegedog/android-backup/internal/ioprim"
	"github.com/1vegedog/android-backup/internal/pathutil"
	"github.com/1vegedog/android-backup/internal/security"
	"github.com/1vegedog/android-backup/internal/util"
)

// Paths names the primary database file plus its directory and the two
// sibling files (write-ahead log and shared-memory) removed on restore so
// the database engine doesn't resurrect stale WAL state against the
// freshly restored primary file.
type Paths struct {
	Dir     string
	Primary string
	WAL     string
	SHM     string
}

// Copier backs up and restores the database named by Paths.
type Copier struct {
	Paths   Paths
	UID     int
	GID     int
	Mode    os.FileMode
	Log     *util.Logger
	Labeler security.Labeler
}

// Backup reads the primary file and writes it to out until EOF.
func (c *Copier) Backup(out io.Writer) error {
	f, err := os.Open(c.Paths.Primary)
	if err != nil {
		return fmt.Errorf("singlefile: open %s: %w", c.Paths.Primary, err)
	}
	defer f.Close()

	if _, err := ioprim.CopyAll(out, f); err != nil {
		return fmt.Errorf("singlefile: copy %s to output: %w", c.Paths.Primary, err)
	}
	return nil
}

// Restore drains in to a sibling temporary file, fsyncs it, removes the
// WAL/SHM siblings, atomically renames the temporary file over the
// primary, and re-applies ownership, mode, and the security label. Any
// failure after the temporary file is created removes it.
func (c *Copier) Restore(in io.Reader) error {
	if err := pathutil.EnsureDirAll(c.Paths.Dir, 0771); err != nil {
		return fmt.Errorf("singlefile: ensure dir %s: %w", c.Paths.Dir, err)
	}

	tmpPath := c.Paths.Primary + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, c.Mode)
	if err != nil {
		return fmt.Errorf("singlefile: create temp file: %w", err)
	}

	rr := &util.ReportingReader{R: in, Log: c.Log, Msg: "restore spool"}
	if _, err := ioprim.CopyAll(tmp, rr); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("singlefile: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		c.Log.Warning("fsync temp file failed: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("singlefile: close temp file: %w", err)
	}

	os.Remove(c.Paths.WAL)
	os.Remove(c.Paths.SHM)

	if err := os.Rename(tmpPath, c.Paths.Primary); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("singlefile: rename into place: %w", err)
	}

	if err := os.Chown(c.Paths.Primary, c.UID, c.GID); err != nil {
		c.Log.Warning("chown %s failed: %v", c.Paths.Primary, err)
	}
	if err := os.Chmod(c.Paths.Primary, c.Mode); err != nil {
		c.Log.Warning("chmod %s failed: %v", c.Paths.Primary, err)
	}
	c.Labeler.Restorecon(c.Paths.Primary)

	return nil
}
