// internal/ziparchive/zip_producer.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package ziparchive implements the ZIP producer (C4) and consumer (C5)
// of spec.md §4.4-4.5: a standard ZIP32 container with central-directory
// parsing. The producer writes through a stdlib archive/zip Writer with
// klauspost/compress's DEFLATE implementation registered on that writer;
// the consumer parses the container itself and inflates entries with the
// same library's flate reader.
package ziparchive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/klauspost/compress/flate"
	"github.com/1vegedog/android-backup/internal/ioprim"
	"github.com/1vegedog/android-backup/internal/util"
)

// Producer walks a directory tree and streams it out as a ZIP container.
type Producer struct {
	StagingDir string
	Log        *util.Logger
}

// Produce writes a ZIP of the tree rooted at baseDir to out. Per-file
// "soft" errors (permission-denied opendir/open/lstat) are logged and
// skipped so a best-effort archive still completes; a failure finalizing
// the archive or copying it to out is fatal and returned.
func (p *Producer) Produce(baseDir string, out io.Writer) error {
	if err := os.MkdirAll(p.StagingDir, 0770); err != nil {
		return fmt.Errorf("ziparchive: ensure staging dir: %w", err)
	}

	tmp, err := os.CreateTemp(p.StagingDir, "mm_zip.*")
	if err != nil {
		return fmt.Errorf("ziparchive: create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	zipDirRecursive(zw, baseDir, baseDir, p.Log)

	if err := zw.Close(); err != nil {
		return fmt.Errorf("ziparchive: finish archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		p.Log.Warning("fsync staging zip failed: %v", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("ziparchive: seek staging file: %w", err)
	}
	rr := &util.ReportingReader{R: tmp, Log: p.Log, Msg: "zip send"}
	if _, err := ioprim.CopyAll(out, rr); err != nil {
		return fmt.Errorf("ziparchive: copy staging file to output: %w", err)
	}
	return nil
}

// zipDirRecursive descends dir (part of the tree rooted at root),
// emitting an entry for every regular file found and, for every
// subdirectory found, a directory entry followed by the entries beneath
// it. The root itself gets no entry. A directory it cannot open is logged and
// skipped, not treated as fatal, matching the original's zip_dir_recursive.
func zipDirRecursive(zw *zip.Writer, root, dir string, log *util.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warning("opendir(%s) failed: %v", dir, err)
		return
	}

	for _, de := range entries {
		abs := path.Join(dir, de.Name())
		rel := abs
		if len(abs) >= len(root) {
			rel = abs[len(root):]
			for len(rel) > 0 && rel[0] == '/' {
				rel = rel[1:]
			}
		}

		info, err := de.Info()
		if err != nil {
			log.Warning("lstat(%s) failed: %v", abs, err)
			continue
		}

		switch {
		case info.IsDir():
			relDir := rel + "/"
			if _, err := zw.CreateHeader(&zip.FileHeader{Name: relDir, Method: zip.Store}); err != nil {
				log.Warning("dir entry failed for %s: %v", relDir, err)
			}
			zipDirRecursive(zw, root, abs, log)
		case info.Mode().IsRegular():
			if err := addFileToZip(zw, abs, rel); err != nil {
				log.Warning("add_file_to_zip failed for %s: %v", rel, err)
			}
		default:
			// symlinks, devices, fifos, sockets are silently skipped.
		}
	}
}

func addFileToZip(zw *zip.Writer, abs, rel string) error {
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: rel, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = ioprim.CopyAll(w, f)
	return err
}
