package channel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eralabs/clcl/internal/task"
)

// Cursor persists a channel's high-water mark so already-handled messages
// are not re-offered across restarts. Saves are atomic whole-file writes.
type Cursor struct {
	path string

	mu sync.Mutex
	st cursorState
}

type cursorState struct {
	LastRowID int64     `json:"lastRowId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OpenCursor loads the cursor at path, starting at zero if absent.
func OpenCursor(path string) (*Cursor, error) {
	c := &Cursor{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	if err := json.Unmarshal(data, &c.st); err != nil {
		return nil, fmt.Errorf("parse cursor %s: %w", path, err)
	}
	return c, nil
}

// Last returns the persisted high-water mark.
func (c *Cursor) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.LastRowID
}

// Set advances the cursor and persists it.
func (c *Cursor) Set(rowID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.st.LastRowID = rowID
	c.st.UpdatedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(c.st, "", "  ")
	if err != nil {
		return err
	}
	if err := task.AtomicWrite(c.path, append(data, '\n')); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
