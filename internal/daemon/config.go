// internal/daemon/config.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package daemon implements the control loop (C9): binding the abstract
// local socket, accepting one connection at a time, receiving a passed
// descriptor plus a command line, and dispatching to the archive engines.
package daemon

import (
	"os"

	"github.com/1vegedog/android-backup/internal/security"
	"github.com/1vegedog/android-backup/internal/singlefile"
	"github.com/1vegedog/android-backup/internal/util"
)

// Config holds every fixed path and identity value the daemon needs,
// injected at startup rather than held as process-wide globals (see
// spec.md §9's Design Notes on global mutable state).
type Config struct {
	// SockName is the abstract socket name, without the leading NUL byte.
	SockName string
	// Backlog is the listen() backlog.
	Backlog int
	// StagingDir is the daemon-private directory used for intermediate
	// files created with unique names and deleted per request.
	StagingDir string

	// RadioUID/RadioGID are applied to the restored SMS database file.
	RadioUID int
	RadioGID int
	// SMSDBMode is the mode applied to the restored SMS database file.
	SMSDBMode os.FileMode

	// ExternalDataGID is the well-known group id used for the owner
	// group of restored external-data trees.
	ExternalDataGID int

	DB singlefile.Paths

	Log     *util.Logger
	Labeler security.Labeler
}

// DefaultConfig returns the fixed values from spec.md §6/§8 and the
// original implementation's constants (AID_RADIO=1001,
// AID_EXT_DATA_RW=1078).
func DefaultConfig(log *util.Logger) Config {
	const telephonyDB = "/data/user/0/com.android.providers.telephony/databases"
	return Config{
		SockName:        "mirrormediad",
		Backlog:         4,
		StagingDir:      "/data/system/mirrormedia",
		RadioUID:        1001,
		RadioGID:        1001,
		SMSDBMode:       0660,
		ExternalDataGID: 1078,
		DB: singlefile.Paths{
			Dir:     telephonyDB,
			Primary: telephonyDB + "/mmssms.db",
			WAL:     telephonyDB + "/mmssms.db-wal",
			SHM:     telephonyDB + "/mmssms.db-shm",
		},
		Log:     log,
		Labeler: security.LoggingLabeler{Log: log, Next: security.NoopLabeler{}},
	}
}
