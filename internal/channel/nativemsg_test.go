package channel

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/eralabs/clcl/internal/config"
)

func newTestStore(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE handle (id TEXT)`,
		`CREATE TABLE message (handle_id INTEGER, text TEXT, date INTEGER, is_from_me INTEGER)`,
		`INSERT INTO handle (id) VALUES ('friend@example.com')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}
	return db, path
}

func insertMessage(t *testing.T, db *sql.DB, text string, fromMe int) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO message (handle_id, text, date, is_from_me) VALUES (1, ?, 1000, ?)`,
		text, fromMe); err != nil {
		t.Fatal(err)
	}
}

func newTestListener(t *testing.T, dbPath string, dispatch *fakeDispatcher) *NativeMessage {
	t.Helper()
	n := NewNativeMessage(config.NativeMessageConfig{PollIntervalS: 1}, dbPath, dispatch)
	cursor, err := OpenCursor(filepath.Join(t.TempDir(), "cursor.json"))
	if err != nil {
		t.Fatal(err)
	}
	n.cursor = cursor
	return n
}

func TestNativeSweepDispatchesMatched(t *testing.T) {
	db, path := newTestStore(t)
	insertMessage(t, db, "hello", 0)
	insertMessage(t, db, "[CLCL-WAKE] Do the thing", 0)
	insertMessage(t, db, "[WAKE] from myself", 1) // own message, ignored

	dispatch := &fakeDispatcher{}
	n := newTestListener(t, path, dispatch)

	if err := n.sweep(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	if dispatch.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", dispatch.count())
	}
	cmd := dispatch.calls[0]
	if cmd.Channel != "native-message" || cmd.Sender != "friend@example.com" {
		t.Errorf("command = %+v", cmd)
	}
	if n.cursor.Last() != 2 {
		t.Errorf("cursor = %d, want 2", n.cursor.Last())
	}
}

func TestNativeSweepAdvancesPastNonMatching(t *testing.T) {
	db, path := newTestStore(t)
	insertMessage(t, db, "just chatting", 0)
	insertMessage(t, db, "more chatter", 0)

	dispatch := &fakeDispatcher{}
	n := newTestListener(t, path, dispatch)

	if err := n.sweep(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if dispatch.count() != 0 {
		t.Fatalf("dispatch count = %d, want 0", dispatch.count())
	}
	if n.cursor.Last() != 2 {
		t.Errorf("cursor = %d, want 2", n.cursor.Last())
	}

	// Second sweep must not re-offer the rows.
	if err := n.sweep(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if dispatch.count() != 0 {
		t.Fatalf("dispatch count after second sweep = %d, want 0", dispatch.count())
	}
}

func TestNativeFailedDispatchReoffersMessage(t *testing.T) {
	db, path := newTestStore(t)
	insertMessage(t, db, "noise", 0)
	insertMessage(t, db, "[CLCL] retry me", 0)

	dispatch := &fakeDispatcher{err: errors.New("disk full")}
	n := newTestListener(t, path, dispatch)

	if err := n.sweep(context.Background(), db); err == nil {
		t.Fatal("want sweep error on failed dispatch")
	}
	// Cursor advanced past the noise row but not past the matched one.
	if n.cursor.Last() != 1 {
		t.Errorf("cursor = %d, want 1", n.cursor.Last())
	}

	dispatch.setErr(nil)
	if err := n.sweep(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if dispatch.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1 after retry", dispatch.count())
	}
	if n.cursor.Last() != 2 {
		t.Errorf("cursor = %d, want 2 after retry", n.cursor.Last())
	}
}

func TestNativeInitCursorSkipsHistory(t *testing.T) {
	db, path := newTestStore(t)
	insertMessage(t, db, "[CLCL-WAKE] old command", 0)

	dispatch := &fakeDispatcher{}
	n := newTestListener(t, path, dispatch)

	if err := n.initCursor(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if err := n.sweep(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if dispatch.count() != 0 {
		t.Fatalf("dispatch count = %d, want 0: history must not replay", dispatch.count())
	}
}
