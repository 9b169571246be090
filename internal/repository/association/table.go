// Package association resolves the company and album an image belongs to
// from a JSON-lines snapshot. Each line is an object keyed by image id:
//
//	{"<imageId>": {"company_id": "...", "album_id": "..."}}
//
// Later lines win on duplicate ids.
package association

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	domimg "github.com/kailas-cloud/imagedex/internal/domain/image"
)

// maxLine bounds a single snapshot line.
const maxLine = 1 << 20

// Table is a read-only id → association map.
type Table struct {
	entries map[string]domimg.Association
}

// Empty returns a table that resolves nothing.
func Empty() *Table {
	return &Table{entries: map[string]domimg.Association{}}
}

// Load reads a snapshot file. A missing path yields an empty table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Empty(), nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("open associations %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a snapshot stream.
func Read(r io.Reader) (*Table, error) {
	t := Empty()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var entry map[string]domimg.Association
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, fmt.Errorf("associations line %d: %w", line, err)
		}
		for id, a := range entry {
			t.entries[id] = a
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read associations: %w", err)
	}
	return t, nil
}

// Lookup returns the association for an image id. A miss is not an error.
func (t *Table) Lookup(_ context.Context, imageID string) (domimg.Association, bool, error) {
	a, ok := t.entries[imageID]
	return a, ok, nil
}

// Len returns the number of known images.
func (t *Table) Len() int {
	return len(t.entries)
}
