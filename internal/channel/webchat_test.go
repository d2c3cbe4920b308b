package channel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eralabs/clcl/internal/command"
	"github.com/eralabs/clcl/internal/config"
)

// fakeDispatcher records dispatched commands and can be told to fail.
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []*command.Command
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, cmd *command.Command) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, cmd)
	return "/tmp/inbox/task.md", nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDispatcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func TestWebchatDispatchesMatchedMessage(t *testing.T) {
	dispatch := &fakeDispatcher{}
	w := NewWebchat(config.WebchatConfig{}, dispatch)

	w.handleMessage(context.Background(), "m1", "u1", "alice", "[CLCL-WAKE] Deploy\nplease")

	if dispatch.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", dispatch.count())
	}
	cmd := dispatch.calls[0]
	if cmd.Channel != "webchat" || cmd.Sender != "alice" {
		t.Errorf("command = %+v", cmd)
	}
	if cmd.Subject != "[CLCL-WAKE] Deploy" {
		t.Errorf("subject = %q, want first line", cmd.Subject)
	}
	if _, seen := w.seen.Get("m1"); !seen {
		t.Error("message not marked consumed after successful dispatch")
	}
}

func TestWebchatFailedDispatchLeavesMessageUnconsumed(t *testing.T) {
	dispatch := &fakeDispatcher{err: errors.New("disk full")}
	w := NewWebchat(config.WebchatConfig{}, dispatch)

	w.handleMessage(context.Background(), "m1", "u1", "alice", "[CLCL] retry me")

	if _, seen := w.seen.Get("m1"); seen {
		t.Fatal("message marked consumed despite failed dispatch")
	}

	// Redelivery after the sink recovers must dispatch and consume.
	dispatch.setErr(nil)
	w.handleMessage(context.Background(), "m1", "u1", "alice", "[CLCL] retry me")

	if dispatch.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", dispatch.count())
	}
	if _, seen := w.seen.Get("m1"); !seen {
		t.Error("message not consumed after successful retry")
	}
}

func TestWebchatDuplicateDelivery(t *testing.T) {
	dispatch := &fakeDispatcher{}
	w := NewWebchat(config.WebchatConfig{}, dispatch)

	w.handleMessage(context.Background(), "m1", "u1", "alice", "[WAKE] once")
	w.handleMessage(context.Background(), "m1", "u1", "alice", "[WAKE] once")

	if dispatch.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1 for duplicate delivery", dispatch.count())
	}
}

func TestWebchatIgnoresNonMatching(t *testing.T) {
	dispatch := &fakeDispatcher{}
	w := NewWebchat(config.WebchatConfig{}, dispatch)

	w.handleMessage(context.Background(), "m1", "u1", "alice", "hello there")

	if dispatch.count() != 0 {
		t.Fatalf("dispatch count = %d, want 0", dispatch.count())
	}
	if _, seen := w.seen.Get("m1"); seen {
		t.Error("non-matching message must not be consumed")
	}
}

func TestWebchatAllowList(t *testing.T) {
	dispatch := &fakeDispatcher{}
	w := NewWebchat(config.WebchatConfig{AllowFrom: []string{"u2"}}, dispatch)

	w.handleMessage(context.Background(), "m1", "u1", "alice", "[CLCL] nope")
	if dispatch.count() != 0 {
		t.Fatalf("dispatch count = %d, want 0 for non-allowed sender", dispatch.count())
	}

	w.handleMessage(context.Background(), "m2", "u2", "bob", "[CLCL] yes")
	if dispatch.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1 for allowed sender", dispatch.count())
	}
}
