package task

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eralabs/clcl/internal/command"
)

// CurrentTaskFile is the mutable pointer the downstream agent polls.
// It always mirrors the latest dispatch, last write wins.
const CurrentTaskFile = "current_task.md"

// Sink writes a command to durable storage and returns the artifact path.
type Sink interface {
	Dispatch(cmd *command.Command) (string, error)
}

// DirSink writes one uniquely named markdown artifact per command into a
// directory, then overwrites the current-task pointer file. It is safe for
// concurrent callers: names carry a microsecond timestamp plus the channel
// name, and every write is atomic.
type DirSink struct {
	dir string
}

// NewDirSink creates a sink writing into dir. The directory is created on
// first dispatch.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Dir returns the destination directory.
func (s *DirSink) Dir() string { return s.dir }

// Dispatch writes the artifact file and updates the current-task pointer.
func (s *DirSink) Dispatch(cmd *command.Command) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create inbox dir: %w", err)
	}

	ts := cmd.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	name := fmt.Sprintf("task_%s_%06d_%s.md",
		ts.Format("20060102_150405"), ts.Nanosecond()/1000, cmd.Channel)
	path := filepath.Join(s.dir, name)

	if err := AtomicWrite(path, renderArtifact(cmd, ts)); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := AtomicWrite(filepath.Join(s.dir, CurrentTaskFile), renderPointer(cmd)); err != nil {
		return "", fmt.Errorf("write current task: %w", err)
	}
	return path, nil
}

func renderArtifact(cmd *command.Command, ts time.Time) []byte {
	var b strings.Builder
	b.WriteString("# Incoming Task\n\n")
	fmt.Fprintf(&b, "**Channel:** %s\n", cmd.Channel)
	fmt.Fprintf(&b, "**Received:** %s\n", ts.Format(time.RFC3339))
	fmt.Fprintf(&b, "**From:** %s\n", cmd.Sender)
	fmt.Fprintf(&b, "**Subject:** %s\n", cmd.Subject)
	b.WriteString("\n## Task\n\n")
	b.WriteString(cmd.Body)
	b.WriteString("\n")
	if len(cmd.Metadata) > 0 {
		meta, err := json.MarshalIndent(cmd.Metadata, "", "  ")
		if err == nil {
			b.WriteString("\n## Metadata\n\n```json\n")
			b.Write(meta)
			b.WriteString("\n```\n")
		}
	}
	return []byte(b.String())
}

func renderPointer(cmd *command.Command) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Current Task (%s)\n\n", cmd.Channel)
	fmt.Fprintf(&b, "**From:** %s\n", cmd.Sender)
	fmt.Fprintf(&b, "**Subject:** %s\n", cmd.Subject)
	b.WriteString("\n## Task\n\n")
	b.WriteString(cmd.Body)
	b.WriteString("\n")
	return []byte(b.String())
}

// AtomicWrite writes data so a partial file is never visible: write to a
// hidden temp file in the target directory, fsync, rename over the target,
// then fsync the directory.
func AtomicWrite(path string, data []byte) error {
	tmp, err := tempPath(path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	ok := false
	defer func() {
		f.Close()
		if !ok {
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	if err := syncDir(filepath.Dir(path)); err != nil {
		return err
	}
	ok = true
	return nil
}

func tempPath(path string) (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("temp suffix: %w", err)
	}
	dir, base := filepath.Split(path)
	return filepath.Join(dir, fmt.Sprintf(".%s.tmp.%d.%s", base, os.Getpid(), hex.EncodeToString(buf[:]))), nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
