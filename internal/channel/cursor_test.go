package channel

import (
	"path/filepath"
	"testing"
)

func TestCursorFreshStartsAtZero(t *testing.T) {
	c, err := OpenCursor(filepath.Join(t.TempDir(), "cursor.json"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Last() != 0 {
		t.Errorf("Last = %d, want 0", c.Last())
	}
}

func TestCursorPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")

	c, err := OpenCursor(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set(42); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenCursor(path)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Last() != 42 {
		t.Errorf("Last after reopen = %d, want 42", reopened.Last())
	}
}
