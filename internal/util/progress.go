// internal/util/progress.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package util

import (
	"fmt"
	"io"
	"time"
)

// ReportingReader wraps an io.Reader, periodically logging how many bytes
// have been read and the throughput since the read began. Used around the
// large whole-stream copies (ZIP staging spool, single-file database
// restore) where a stalled or slow client is otherwise silent until the
// operation completes or times out.
type ReportingReader struct {
	R     io.Reader
	Log   *Logger
	Msg   string
	start time.Time

	reportCounter, readBytes int64
}

const reportFrequency = 64 * 1024 * 1024

func (r *ReportingReader) Read(buf []byte) (int, error) {
	if r.start.IsZero() {
		r.start = time.Now()
		r.reportCounter = reportFrequency
	}

	n, err := r.R.Read(buf)

	r.readBytes += int64(n)
	r.reportCounter -= int64(n)
	if r.reportCounter < 0 {
		r.report()
		r.reportCounter += reportFrequency
	}

	return n, err
}

func (r *ReportingReader) report() {
	delta := time.Since(r.start)
	bytesPerSec := int64(float64(r.readBytes) / delta.Seconds())
	r.Log.Debug("%s: %s [%s/s]", r.Msg, FmtBytes(r.readBytes), FmtBytes(bytesPerSec))
}

// FmtBytes renders n as a human-readable byte count with a binary-prefix
// unit, used for log lines and diagnostics.
func FmtBytes(n int64) string {
	switch {
	case n >= 1024*1024*1024*1024:
		return fmt.Sprintf("%.2f TiB", float64(n)/(1024.*1024.*1024.*1024.))
	case n >= 1024*1024*1024:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1024.*1024.*1024.))
	case n > 1024*1024:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1024.*1024.))
	case n > 1024:
		return fmt.Sprintf("%.2f kiB", float64(n)/1024.)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
