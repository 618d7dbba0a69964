// Package vocab loads the token table mapping model output units to ids.
package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrDuplicateToken reports a token string that appears twice in the table.
var ErrDuplicateToken = errors.New("duplicate token")

// Table is an immutable token-to-id mapping loaded once at startup.
type Table struct {
	ids map[string]int32
}

// Load reads a two-column whitespace-separated token table. Line order
// carries no meaning beyond the mapping itself.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token table: %w", err)
	}
	defer f.Close()

	ids := make(map[string]int32)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("token table %s line %d: expected 2 fields, got %d", path, lineNo, len(fields))
		}
		id, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("token table %s line %d: bad id %q: %w", path, lineNo, fields[1], err)
		}
		if _, ok := ids[fields[0]]; ok {
			return nil, fmt.Errorf("token table %s line %d: %q: %w", path, lineNo, fields[0], ErrDuplicateToken)
		}
		ids[fields[0]] = int32(id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read token table: %w", err)
	}
	return &Table{ids: ids}, nil
}

// ID returns the id for a token and whether it is present.
func (t *Table) ID(token string) (int32, bool) {
	id, ok := t.ids[token]
	return id, ok
}

// Len reports the number of entries.
func (t *Table) Len() int {
	return len(t.ids)
}
