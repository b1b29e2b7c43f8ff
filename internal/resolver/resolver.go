// internal/resolver/resolver.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package resolver maps the closed set of logical data roots the daemon
// accepts onto their real on-device filesystem locations. It touches no
// filesystem state; it is a pure function of its input string.
package resolver

import (
	"errors"
	"strings"

	"github.com/1vegedog/android-backup/internal/pathutil"
)

// ErrUnrecognizedRoot is returned when the logical path does not match
// any of the four recognized forms.
var ErrUnrecognizedRoot = errors.New("resolver: unrecognized logical root")

const (
	logicalData    = "/data/data"
	realDataBase   = "/data/user/0"
	logicalExt     = "/sdcard/Android/data"
	realExtBase    = "/data/media/0/Android/data"
)

// Resolved describes where a logical path actually lives.
type Resolved struct {
	RealRoot string
	RelBase  string
	External bool
}

// BaseDir is the actual directory to operate on: RealRoot if RelBase is
// empty, else Join(RealRoot, RelBase).
func (r Resolved) BaseDir() string {
	if r.RelBase == "" {
		return r.RealRoot
	}
	return pathutil.Join(r.RealRoot, r.RelBase)
}

// Resolve maps a logical path to its real root plus an optional
// sub-path suffix. It fails when the input does not match one of the
// four recognized forms in spec.md §3:
//
//	exactly "/data/data"                   -> /data/user/0
//	"/data/data/<tail>"                    -> /data/user/0/<tail>
//	exactly "/sdcard/Android/data"         -> /data/media/0/Android/data
//	"/sdcard/Android/data/<tail>"          -> /data/media/0/Android/data/<tail>
func Resolve(logical string) (Resolved, error) {
	if logical == logicalData {
		return Resolved{RealRoot: realDataBase}, nil
	}
	if strings.HasPrefix(logical, logicalData+"/") {
		return Resolved{
			RealRoot: realDataBase,
			RelBase:  logical[len(logicalData)+1:],
		}, nil
	}
	if logical == logicalExt {
		return Resolved{RealRoot: realExtBase, External: true}, nil
	}
	if strings.HasPrefix(logical, logicalExt+"/") {
		return Resolved{
			RealRoot: realExtBase,
			RelBase:  logical[len(logicalExt)+1:],
			External: true,
		}, nil
	}
	return Resolved{}, ErrUnrecognizedRoot
}

// ResolveExternalRoot refines the real root for an external-data
// destination the way the raw consumer (C7) does: when the logical prefix
// is "/sdcard/Android/data/", the real root becomes
// "/data/media/0/Android/data/<tail>" with trailing separators stripped,
// overriding whatever RelBase-based BaseDir would otherwise compute. This
// mirrors the original's restore_tree_from_fd, which re-derives real_root
// directly from the logical string rather than trusting the generic
// resolver's RelBase for this one path family.
func ResolveExternalRoot(logical string) (root string, ok bool) {
	const prefix = logicalExt + "/"
	if !strings.HasPrefix(logical, prefix) {
		return "", false
	}
	tail := strings.TrimSuffix(logical[len(prefix):], "/")
	for strings.HasSuffix(tail, "/") {
		tail = strings.TrimSuffix(tail, "/")
	}
	if tail == "" {
		return "", false
	}
	return realExtBase + "/" + tail, true
}
