// internal/pathutil/pathutil.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package pathutil provides the directory-creation, joining, and
// relative-path sanitization primitives shared by every archive engine and
// the restore pipeline.
package pathutil

import (
	"errors"
	"os"
	"strings"
)

var ErrNotAbsolute = errors.New("pathutil: path is empty or not absolute")

// EnsureDirAll creates every missing component of an absolute path with
// the given mode; an existing component is not an error. Repeated calls
// with the same path and mode are a no-op after the first success.
func EnsureDirAll(path string, mode os.FileMode) error {
	if path == "" || path[0] != '/' {
		return ErrNotAbsolute
	}

	pos := 1
	for {
		idx := strings.IndexByte(path[pos:], '/')
		var sub string
		if idx < 0 {
			sub = path
		} else {
			sub = path[:pos+idx]
		}
		if sub != "" {
			if err := os.Mkdir(sub, mode); err != nil && !os.IsExist(err) {
				return err
			}
		}
		if idx < 0 {
			break
		}
		pos += idx + 1
	}
	return nil
}

// Join concatenates base and rel with exactly one separator. If rel is
// already absolute it is appended after base as-is, preserving the
// original daemon's behavior where callers are expected to have already
// sanitized rel before calling Join.
func Join(base, rel string) string {
	if base == "" {
		return rel
	}
	if rel == "" {
		return base
	}
	if rel[0] == '/' {
		return base + rel
	}
	return base + "/" + rel
}

// ParentOf returns the directory containing path, returning "/" when the
// only separator is the leading one.
func ParentOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	if idx == 0 {
		return "/"
	}
	return path[:idx]
}

var ErrUnsafeRelPath = errors.New("pathutil: relative path escapes base (contains \"..\")")

// SanitizeRel strips leading separators, collapses doubled separators, and
// fails if any ".." substring remains. This is the only path-safety check
// performed on consumer-supplied entry names from either archive format.
func SanitizeRel(rel string) (string, error) {
	for len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}
	if strings.Contains(rel, "..") {
		return "", ErrUnsafeRelPath
	}
	for strings.Contains(rel, "//") {
		rel = strings.Replace(rel, "//", "/", 1)
	}
	return rel, nil
}
