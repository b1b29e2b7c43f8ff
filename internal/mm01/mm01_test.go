// internal/mm01/mm01_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package mm01

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/1vegedog/android-backup/internal/security"
	"github.com/1vegedog/android-backup/internal/util"
)

func record(tag byte, rel string, mode uint32, mtime, size uint64) []byte {
	var b bytes.Buffer
	b.WriteByte(tag)
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], uint16(len(rel)))
	b.Write(u16[:])
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], mode)
	b.Write(u32[:])
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], mtime)
	b.Write(u64[:])
	binary.LittleEndian.PutUint64(u64[:], size)
	b.Write(u64[:])
	b.WriteString(rel)
	return b.Bytes()
}

func TestProduceExactByteLayout(t *testing.T) {
	base := t.TempDir()
	if err := os.Mkdir(filepath.Join(base, "files"), 0770); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	fpath := filepath.Join(base, "files", "a.bin")
	if err := os.WriteFile(fpath, []byte("abc"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	mtime := time.Unix(1_700_000_000, 0)
	if err := os.Chtimes(fpath, mtime, mtime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := os.Chmod(fpath, 0644); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	log := util.NewLogger(false, false)
	p := &Producer{Log: log}
	var out bytes.Buffer
	if err := p.Produce(base, &out); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	var want bytes.Buffer
	want.WriteString(Magic)
	want.Write(record(TagDir, "", 0770, 0, 0))
	want.Write(record(TagDir, "files", 0770, 0, 0))
	want.Write(record(TagFile, "files/a.bin", 0644, uint64(mtime.Unix()), 3))
	want.WriteString("abc")
	want.Write(record(TagEnd, "", 0, 0, 0))

	if !bytes.Equal(out.Bytes(), want.Bytes()) {
		t.Fatalf("Produce output mismatch:\n got: %x\nwant: %x", out.Bytes(), want.Bytes())
	}
}

func TestConsumeRoundTripInternal(t *testing.T) {
	src := t.TempDir()
	if err := os.Mkdir(filepath.Join(src, "files"), 0770); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "files", "a.bin"), []byte("abc"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	log := util.NewLogger(false, false)
	p := &Producer{Log: log}
	var stream bytes.Buffer
	if err := p.Produce(src, &stream); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	dst := t.TempDir()
	c := &Consumer{Log: log, Labeler: security.NoopLabeler{}}
	if err := c.Consume(&stream, dst, false, 10123, 10123); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "files", "a.bin"))
	if err != nil {
		t.Fatalf("ReadFile restored: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("restored content = %q, want %q", got, "abc")
	}
	info, err := os.Stat(filepath.Join(dst, "files", "a.bin"))
	if err != nil {
		t.Fatalf("Stat restored: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Fatalf("restored mode = %o, want 0644", info.Mode().Perm())
	}
}

func TestConsumeSkipsUnsafeEntryButDrainsPayload(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString(Magic)
	stream.Write(record(TagFile, "../escape.txt", 0644, 0, 4))
	stream.WriteString("evil")
	stream.Write(record(TagEnd, "", 0, 0, 0))

	dst := t.TempDir()
	log := util.NewLogger(false, false)
	c := &Consumer{Log: log, Labeler: security.NoopLabeler{}}
	err := c.Consume(&stream, dst, false, 10123, 10123)
	if err != ErrPartialFailure {
		t.Fatalf("Consume err = %v, want ErrPartialFailure", err)
	}

	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dst), "escape.txt")); statErr == nil {
		t.Fatalf("escape.txt was created outside the destination base")
	}
	entries, err := os.ReadDir(dst)
	if err != nil {
		t.Fatalf("ReadDir dst: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty destination tree, found %v", entries)
	}
}

func TestConsumeBadMagicRejected(t *testing.T) {
	stream := bytes.NewBufferString("NOPE")
	dst := t.TempDir()
	log := util.NewLogger(false, false)
	c := &Consumer{Log: log, Labeler: security.NoopLabeler{}}
	if err := c.Consume(stream, dst, false, 0, 0); err != ErrBadMagic {
		t.Fatalf("Consume err = %v, want ErrBadMagic", err)
	}
}

func TestConsumeExternalTreeDirsGetSetgid(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString(Magic)
	stream.Write(record(TagDir, "", 02770, 0, 0))
	stream.Write(record(TagDir, "files", 02770, 0, 0))
	stream.Write(record(TagFile, "files/a.bin", 0644, 0, 4))
	stream.WriteString("data")
	stream.Write(record(TagEnd, "", 0, 0, 0))

	dst := t.TempDir()
	log := util.NewLogger(false, false)
	c := &Consumer{Log: log, Labeler: security.NoopLabeler{}}
	const extGID = 1078
	if err := c.Consume(&stream, dst, true, 10123, extGID); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	topInfo, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("Stat dst: %v", err)
	}
	if topInfo.Mode()&os.ModeSetgid == 0 {
		t.Fatalf("top of external tree missing setgid bit: mode=%v", topInfo.Mode())
	}

	filesInfo, err := os.Stat(filepath.Join(dst, "files"))
	if err != nil {
		t.Fatalf("Stat files dir: %v", err)
	}
	if filesInfo.Mode()&os.ModeSetgid == 0 {
		t.Fatalf("descendant dir missing setgid bit: mode=%v", filesInfo.Mode())
	}
}
