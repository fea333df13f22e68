// ABOUTME: Immutable word list loaded once at startup and shared by every agent session.
// ABOUTME: Reads a line-oriented file, normalizing to lowercase and dropping blanks and duplicates.

package words

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrEmptyDictionary is returned when a source yields no usable words.
var ErrEmptyDictionary = errors.New("dictionary is empty")

// Dictionary is an ordered, read-only sequence of lowercase words.
// It is never mutated after construction, so concurrent readers need no locking.
type Dictionary struct {
	words []string
}

// Load reads a dictionary from a line-oriented file.
func Load(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dictionary: %w", err)
	}
	defer f.Close()

	d, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary %s: %w", path, err)
	}
	return d, nil
}

// Read builds a dictionary from r, one word per line.
func Read(r io.Reader) (*Dictionary, error) {
	seen := make(map[string]struct{})
	var list []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		w := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		list = append(list, w)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrEmptyDictionary
	}
	return &Dictionary{words: list}, nil
}

// New builds a dictionary from an in-memory list, applying the same
// normalization as Read.
func New(list []string) (*Dictionary, error) {
	return Read(strings.NewReader(strings.Join(list, "\n")))
}

// Len returns the number of words.
func (d *Dictionary) Len() int {
	return len(d.words)
}
