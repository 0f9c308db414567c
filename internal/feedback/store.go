// Package feedback persists listener feedback on class mappings. Records
// are stored as append-only JSON lines in a local file and replayed into a
// [mapper.Learner] at startup so learned dial offsets survive restarts.
package feedback

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
)

// maxLine bounds a single record; longer lines are reported as corrupt.
const maxLine = 64 * 1024

// FileStore persists feedback as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string { return s.path }

// Save appends fb to the file. A zero Time is set to the current time.
func (s *FileStore) Save(fb mapper.Feedback) error {
	if fb.ClassName == "" {
		return errors.New("feedback: class name is required")
	}
	if fb.Time.IsZero() {
		fb.Time = s.now().UTC()
	}

	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("feedback: marshal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("feedback: write: %w", err)
	}
	return nil
}

// Load returns every record in file order. A missing file yields no
// records. Corrupt lines are skipped and logged.
func (s *FileStore) Load() ([]mapper.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	var out []mapper.Feedback
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var fb mapper.Feedback
		if err := json.Unmarshal(sc.Bytes(), &fb); err != nil {
			slog.Warn("feedback: skipping corrupt record", "path", s.path, "line", line, "err", err)
			continue
		}
		out = append(out, fb)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("feedback: read %q: %w", s.path, err)
	}
	return out, nil
}

// Replay applies every stored record to l in file order and returns how
// many were accepted. Records the learner rejects are logged and skipped.
func (s *FileStore) Replay(l mapper.Learner) (int, error) {
	records, err := s.Load()
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, fb := range records {
		if err := l.UpdateWeights(fb); err != nil {
			slog.Warn("feedback: learner rejected record", "class", fb.ClassName, "err", err)
			continue
		}
		applied++
	}
	return applied, nil
}

// Submit applies fb to l and persists it only if the learner accepted it,
// so a replay never sees a record that failed live.
func (s *FileStore) Submit(l mapper.Learner, fb mapper.Feedback) error {
	if fb.Time.IsZero() {
		fb.Time = s.now().UTC()
	}
	if err := l.UpdateWeights(fb); err != nil {
		return fmt.Errorf("feedback: apply: %w", err)
	}
	return s.Save(fb)
}

