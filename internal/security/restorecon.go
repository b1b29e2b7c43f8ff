// internal/security/restorecon.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package security wraps the SELinux label database as an opaque
// capability, mirroring the original's extern "C" declaration of
// selinux_android_restorecon: the label database itself is an external
// collaborator outside this module's scope (spec.md §1), but every
// restore path needs somewhere to call into it and needs that call to be
// non-fatal on failure.
package security

import "github.com/1vegedog/android-backup/internal/util"

// Labeler restores a security label for a path. Implementations are
// expected never to return an error that should abort a restore; any
// failure is the caller's to log and ignore, matching the original
// policy that restorecon failures are logged but never fatal.
type Labeler interface {
	Restorecon(path string) error
}

// NoopLabeler is used on non-Android hosts and in tests, where there is
// no label database to call into.
type NoopLabeler struct{}

func (NoopLabeler) Restorecon(string) error { return nil }

// LoggingLabeler wraps another Labeler and logs (but never propagates)
// any failure it reports, matching spec.md §4.9's "Security labeling:
// ... Failure to apply a label is logged but never fatal."
type LoggingLabeler struct {
	Log  *util.Logger
	Next Labeler
}

func (l LoggingLabeler) Restorecon(path string) error {
	if err := l.Next.Restorecon(path); err != nil {
		l.Log.Warning("restorecon(%s) failed: %v", path, err)
	}
	return nil
}
