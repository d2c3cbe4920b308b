package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eralabs/clcl/internal/command"
)

func TestDirSinkWritesArtifactAndPointer(t *testing.T) {
	dir := t.TempDir()
	sink := NewDirSink(dir)

	path, err := sink.Dispatch(&command.Command{
		Channel:   "email",
		Sender:    "sender@example.com",
		Subject:   "[CLCL-WAKE] Review PR #42",
		Body:      "Please review.",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	artifact, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"sender@example.com", "[CLCL-WAKE] Review PR #42", "Please review."} {
		if !strings.Contains(string(artifact), want) {
			t.Errorf("artifact missing %q:\n%s", want, artifact)
		}
	}

	current, err := os.ReadFile(filepath.Join(dir, CurrentTaskFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"sender@example.com", "[CLCL-WAKE] Review PR #42", "Please review."} {
		if !strings.Contains(string(current), want) {
			t.Errorf("current task missing %q:\n%s", want, current)
		}
	}
}

func TestDirSinkArtifactName(t *testing.T) {
	dir := t.TempDir()
	sink := NewDirSink(dir)

	ts := time.Date(2026, 8, 31, 9, 30, 15, 123456789, time.UTC)
	path, err := sink.Dispatch(&command.Command{
		Channel:   "webchat",
		Sender:    "u",
		Body:      "[WAKE] hi",
		Timestamp: ts,
	})
	if err != nil {
		t.Fatal(err)
	}

	want := "task_20260831_093015_123456_webchat.md"
	if filepath.Base(path) != want {
		t.Errorf("artifact name = %q, want %q", filepath.Base(path), want)
	}
}

func TestDirSinkConcurrentChannelsNoCollision(t *testing.T) {
	dir := t.TempDir()
	sink := NewDirSink(dir)

	// Same sub-second timestamp from two channels must yield two files.
	ts := time.Now()
	channels := []string{"email", "webchat"}

	paths := make([]string, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch string) {
			defer wg.Done()
			path, err := sink.Dispatch(&command.Command{
				Channel:   ch,
				Sender:    "s",
				Body:      "[CLCL] x",
				Timestamp: ts,
			})
			if err != nil {
				t.Error(err)
				return
			}
			paths[i] = path
		}(i, ch)
	}
	wg.Wait()

	if paths[0] == paths[1] {
		t.Fatalf("artifact paths collide: %q", paths[0])
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("artifact %q missing: %v", p, err)
		}
	}
}

func TestDirSinkMetadataBlock(t *testing.T) {
	dir := t.TempDir()
	sink := NewDirSink(dir)

	path, err := sink.Dispatch(&command.Command{
		Channel:  "webchat",
		Sender:   "u",
		Body:     "[WAKE] meta",
		Metadata: map[string]any{"message_id": "1234"},
	})
	if err != nil {
		t.Fatal(err)
	}

	artifact, _ := os.ReadFile(path)
	if !strings.Contains(string(artifact), "## Metadata") {
		t.Errorf("artifact missing metadata block:\n%s", artifact)
	}
	if !strings.Contains(string(artifact), `"message_id": "1234"`) {
		t.Errorf("artifact missing metadata value:\n%s", artifact)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.md")

	if err := AtomicWrite(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, []byte("two")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("leftover files: %v", names)
	}
}

// --- pipeline ---

type recordTrigger struct {
	paths []string
	err   error
}

func (r *recordTrigger) Fire(_ context.Context, path string) error {
	r.paths = append(r.paths, path)
	return r.err
}

type failSink struct{}

func (failSink) Dispatch(*command.Command) (string, error) {
	return "", errors.New("disk full")
}

func TestPipelineFiresTrigger(t *testing.T) {
	trigger := &recordTrigger{}
	p := NewPipeline(NewDirSink(t.TempDir()), trigger)

	path, err := p.Dispatch(context.Background(), &command.Command{
		Channel: "email", Sender: "s", Subject: "[CLCL] go", Body: "b",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(trigger.paths) != 1 || trigger.paths[0] != path {
		t.Errorf("trigger paths = %v, want [%s]", trigger.paths, path)
	}
}

func TestPipelineTriggerFailureNotPropagated(t *testing.T) {
	trigger := &recordTrigger{err: errors.New("agent unreachable")}
	p := NewPipeline(NewDirSink(t.TempDir()), trigger)

	if _, err := p.Dispatch(context.Background(), &command.Command{
		Channel: "email", Sender: "s", Subject: "[CLCL] go", Body: "b",
	}); err != nil {
		t.Fatalf("trigger failure propagated: %v", err)
	}
}

func TestPipelineSinkFailurePropagated(t *testing.T) {
	trigger := &recordTrigger{}
	p := NewPipeline(failSink{}, trigger)

	if _, err := p.Dispatch(context.Background(), &command.Command{Channel: "email"}); err == nil {
		t.Fatal("want error from failing sink")
	}
	if len(trigger.paths) != 0 {
		t.Errorf("trigger fired despite sink failure: %v", trigger.paths)
	}
}
