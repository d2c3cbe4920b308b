package channel

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eralabs/clcl/internal/command"
	"github.com/eralabs/clcl/internal/config"
	"github.com/eralabs/clcl/internal/task"
)

const nativeReconnectDelay = 10 * time.Second

// appleEpoch is the Core Data reference date; message.date counts
// nanoseconds from it on current macOS versions.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// NativeMessage polls the macOS Messages store read-only. A persisted ROWID
// cursor is the consumption marker: it advances past a matched row only
// after the dispatch succeeds.
type NativeMessage struct {
	cfg      config.NativeMessageConfig
	dbPath   string
	dispatch task.Dispatcher

	state  stateVar
	cancel context.CancelFunc
	cursor *Cursor
}

// NewNativeMessage creates the native-message listener. dbPath is the
// expanded chat.db location.
func NewNativeMessage(cfg config.NativeMessageConfig, dbPath string, dispatch task.Dispatcher) *NativeMessage {
	return &NativeMessage{
		cfg:      cfg,
		dbPath:   dbPath,
		dispatch: dispatch,
	}
}

func (n *NativeMessage) Name() string { return "native-message" }

func (n *NativeMessage) State() State { return n.state.get() }

// CheckDependencies verifies the Messages store is readable. On macOS this
// requires Full Disk Access for the hosting terminal.
func (n *NativeMessage) CheckDependencies() (bool, string) {
	f, err := os.Open(n.dbPath)
	if err != nil {
		return false, fmt.Sprintf("cannot read %s (grant Full Disk Access): %v", n.dbPath, err)
	}
	f.Close()
	return true, n.dbPath
}

// Stop requests shutdown.
func (n *NativeMessage) Stop() error {
	n.state.set(StateStopping)
	if n.cancel != nil {
		n.cancel()
	}
	return nil
}

// Start runs the poll loop until Stop. Store errors reconnect after a fixed
// delay.
func (n *NativeMessage) Start(ctx context.Context) error {
	ctx, n.cancel = context.WithCancel(ctx)
	defer n.state.set(StateStopped)

	cursor, err := OpenCursor(filepath.Join(config.StateDir(), "native-message.json"))
	if err != nil {
		return err
	}
	n.cursor = cursor

	for {
		n.state.set(StateConnecting)
		err := n.poll(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Warn("Messages store error, retrying in 10s...", "err", err)
		n.state.set(StateReconnecting)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(nativeReconnectDelay):
		}
	}
}

func (n *NativeMessage) poll(ctx context.Context) error {
	db, err := sql.Open("sqlite3", "file:"+n.dbPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open %s: %w", n.dbPath, err)
	}
	defer db.Close()

	if err := n.initCursor(ctx, db); err != nil {
		return err
	}

	interval := time.Duration(n.cfg.PollIntervalS) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	slog.Info("Messages listening", "db", n.dbPath, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n.state.set(StateListening)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.sweep(ctx, db); err != nil {
				return err
			}
		}
	}
}

// initCursor seeds a fresh cursor at the current high-water mark so message
// history is not replayed on first run.
func (n *NativeMessage) initCursor(ctx context.Context, db *sql.DB) error {
	if n.cursor.Last() > 0 {
		return nil
	}
	var max sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(ROWID) FROM message`).Scan(&max); err != nil {
		return fmt.Errorf("read message high-water mark: %w", err)
	}
	if !max.Valid {
		return nil
	}
	return n.cursor.Set(max.Int64)
}

// sweep processes rows past the cursor in ROWID order. The cursor advances
// past non-matching rows immediately and past matched rows only after a
// successful dispatch; a dispatch failure aborts the sweep so the row is
// re-offered on the next tick.
func (n *NativeMessage) sweep(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `
		SELECT message.ROWID, COALESCE(handle.id, ''), message.text, message.date
		FROM message
		LEFT JOIN handle ON message.handle_id = handle.ROWID
		WHERE message.ROWID > ?
		  AND message.is_from_me = 0
		  AND message.text IS NOT NULL
		ORDER BY message.ROWID`,
		n.cursor.Last())
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	type row struct {
		rowID  int64
		sender string
		text   string
		date   int64
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.rowID, &r.sender, &r.text, &r.date); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate messages: %w", err)
	}

	for _, r := range pending {
		if err := n.handleRow(ctx, r.rowID, r.sender, r.text, r.date); err != nil {
			return err
		}
	}
	return nil
}

// handleRow evaluates one message row and advances the cursor. The returned
// error is non-nil only for a failed dispatch, which must stop the sweep.
func (n *NativeMessage) handleRow(ctx context.Context, rowID int64, sender, text string, date int64) error {
	if !IsAllowed(sender, n.cfg.AllowFrom) {
		return n.cursor.Set(rowID)
	}
	if _, ok := command.Match(text); !ok {
		slog.Debug("Message ignored (no wake prefix)", "from", sender)
		return n.cursor.Set(rowID)
	}

	cmd := &command.Command{
		Channel:   "native-message",
		Sender:    sender,
		Subject:   firstLine(text),
		Body:      text,
		Timestamp: appleEpoch.Add(time.Duration(date)),
		Metadata:  map[string]any{"rowid": rowID},
	}

	if _, err := n.dispatch.Dispatch(ctx, cmd); err != nil {
		return fmt.Errorf("dispatch message %d: %w", rowID, err)
	}
	return n.cursor.Set(rowID)
}
