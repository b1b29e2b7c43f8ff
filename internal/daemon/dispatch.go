// internal/daemon/dispatch.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package daemon

import (
	"errors"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/1vegedog/android-backup/internal/mm01"
	"github.com/1vegedog/android-backup/internal/resolver"
	"github.com/1vegedog/android-backup/internal/singlefile"
	"github.com/1vegedog/android-backup/internal/ziparchive"
)

var (
	errWrongArgs = errors.New("daemon: wrong argument count for verb")
	errBadUID    = errors.New("daemon: malformed UID argument")
)

// dispatch parses the command line received on conn and routes it to the
// matching archive engine, reading from or writing to iofd as the verb
// requires. It writes the acknowledgement the verb table demands (see
// spec.md §6), or none at all, directly to conn.
func (s *Server) dispatch(conn *net.UnixConn, iofd *os.File, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		s.cfg.Log.Warning("empty command line")
		return
	}
	verb := fields[0]
	args := fields[1:]

	switch verb {
	case "ZIP":
		s.doZip(iofd, args)
	case "UNZIP":
		s.ack(conn, s.doUnzip(iofd, args))
	case "DUMP":
		s.ack(conn, s.doDump(iofd, args))
	case "PUTRAW":
		s.ack(conn, s.doPutraw(iofd, args))
	case "BACKUP_SMS_DB":
		s.doBackupSMSDB(iofd)
	case "RESTORE_SMS_DB":
		s.ack(conn, s.doRestoreSMSDB(iofd))
	default:
		s.cfg.Log.Warning("unknown verb %q", verb)
	}
}

// ack writes the OK/ERR acknowledgement the verb table requires for
// UNZIP, DUMP, PUTRAW, and RESTORE_SMS_DB. ZIP and BACKUP_SMS_DB never
// call this; the client infers their success by reading the stream to
// completion instead.
func (s *Server) ack(conn *net.UnixConn, err error) {
	msg := "OK\n"
	if err != nil {
		s.cfg.Log.Warning("command failed: %v", err)
		msg = "ERR\n"
	}
	if _, werr := conn.Write([]byte(msg)); werr != nil {
		s.cfg.Log.Warning("write ack failed: %v", werr)
	}
}

func (s *Server) doZip(iofd *os.File, args []string) {
	if len(args) != 1 {
		s.cfg.Log.Warning("ZIP: wrong argument count")
		return
	}
	res, err := resolver.Resolve(args[0])
	if err != nil {
		s.cfg.Log.Warning("ZIP: %v", err)
		return
	}
	p := &ziparchive.Producer{StagingDir: s.cfg.StagingDir, Log: s.cfg.Log}
	if err := p.Produce(res.BaseDir(), iofd); err != nil {
		s.cfg.Log.Warning("ZIP: %v", err)
	}
}

func (s *Server) doUnzip(iofd *os.File, args []string) error {
	logical, uid, err := parseDstUID(args)
	if err != nil {
		return err
	}
	res, err := resolver.Resolve(logical)
	if err != nil {
		return err
	}
	c := &ziparchive.Consumer{StagingDir: s.cfg.StagingDir, Log: s.cfg.Log, Labeler: s.cfg.Labeler}
	return c.Consume(iofd, res.BaseDir(), uid)
}

func (s *Server) doDump(iofd *os.File, args []string) error {
	if len(args) != 1 {
		return errWrongArgs
	}
	res, err := resolver.Resolve(args[0])
	if err != nil {
		return err
	}
	p := &mm01.Producer{Log: s.cfg.Log}
	return p.Produce(res.BaseDir(), iofd)
}

func (s *Server) doPutraw(iofd *os.File, args []string) error {
	logical, uid, err := parseDstUID(args)
	if err != nil {
		return err
	}
	res, err := resolver.Resolve(logical)
	if err != nil {
		return err
	}

	realRoot := res.BaseDir()
	gid := uid
	if res.External {
		if refined, ok := resolver.ResolveExternalRoot(logical); ok {
			realRoot = refined
		}
		gid = s.cfg.ExternalDataGID
	}

	c := &mm01.Consumer{Log: s.cfg.Log, Labeler: s.cfg.Labeler}
	return c.Consume(iofd, realRoot, res.External, uid, gid)
}

func (s *Server) doBackupSMSDB(iofd *os.File) {
	c := &singlefile.Copier{
		Paths:   s.cfg.DB,
		UID:     s.cfg.RadioUID,
		GID:     s.cfg.RadioGID,
		Mode:    s.cfg.SMSDBMode,
		Log:     s.cfg.Log,
		Labeler: s.cfg.Labeler,
	}
	if err := c.Backup(iofd); err != nil {
		s.cfg.Log.Warning("BACKUP_SMS_DB: %v", err)
	}
}

func (s *Server) doRestoreSMSDB(iofd *os.File) error {
	c := &singlefile.Copier{
		Paths:   s.cfg.DB,
		UID:     s.cfg.RadioUID,
		GID:     s.cfg.RadioGID,
		Mode:    s.cfg.SMSDBMode,
		Log:     s.cfg.Log,
		Labeler: s.cfg.Labeler,
	}
	return c.Restore(iofd)
}

// parseDstUID parses the "<logical_dst> ... UID <n> ..." argument shape
// shared by UNZIP and PUTRAW: the destination path comes first, and the
// remaining tokens are scanned for a literal "UID" marker followed by its
// value, skipping any other interleaved tokens and ignoring everything
// after the value is found — matching the original's token loop rather
// than requiring an exact three-token shape.
func parseDstUID(args []string) (logical string, uid int, err error) {
	if len(args) < 1 {
		return "", 0, errWrongArgs
	}
	logical = args[0]
	for i := 1; i < len(args); i++ {
		if args[i] != "UID" {
			continue
		}
		if i+1 >= len(args) {
			return "", 0, errWrongArgs
		}
		n, perr := strconv.Atoi(args[i+1])
		if perr != nil {
			return "", 0, errBadUID
		}
		return logical, n, nil
	}
	return "", 0, errWrongArgs
}
