// File: internal/store/file.go
package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/relock/internal/locator"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// persistedRecord is the on-disk layout: one flat JSON object per line, so
// appends never touch prior bytes.
type persistedRecord struct {
	Identity  string    `json:"identity"`
	Strategy  string    `json:"strategy"`
	Value     string    `json:"value"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// FileStore is a JSON-lines locator store. The whole file is loaded at open;
// appends go through a single mutex, are written as one line, and are fsynced
// before Append returns so a crash after a learned resolution cannot lose it.
type FileStore struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	records map[locator.Identity][]Record
	log     *zap.Logger
}

var _ Store = (*FileStore)(nil)

// DefaultPath places the store under the user's home directory.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".relock", "locators.jsonl"), nil
}

// OpenFile opens (creating if absent) the store at path and loads it fully
// into memory. Lines that fail to decode are skipped with a warning rather
// than poisoning the whole store.
func OpenFile(path string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open locator store %s: %w", path, err)
	}

	s := &FileStore{
		path:    path,
		file:    f,
		records: make(map[locator.Identity][]Record),
		log:     logger.Named("store.file"),
	}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	// Load and Append share one handle; every write seeks to the end under
	// the mutex.
	return s, nil
}

func (s *FileStore) load() error {
	scanner := bufio.NewScanner(s.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var pr persistedRecord
		if err := json.Unmarshal(raw, &pr); err != nil {
			s.log.Warn("Skipping undecodable store line",
				zap.Int("line", line), zap.Error(err))
			continue
		}
		desc := locator.Descriptor{Strategy: locator.Strategy(pr.Strategy), Value: pr.Value}
		if err := desc.Validate(); err != nil {
			s.log.Warn("Skipping store line with invalid descriptor",
				zap.Int("line", line), zap.Error(err))
			continue
		}
		id := locator.Identity(pr.Identity)
		s.records[id] = append(s.records[id], Record{
			Descriptor: desc,
			Success:    pr.Success,
			Timestamp:  pr.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read locator store %s: %w", s.path, err)
	}
	return nil
}

// RecordsFor returns the successful records for id, newest first.
func (s *FileStore) RecordsFor(_ context.Context, id locator.Identity) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return successNewestFirst(s.records[id]), nil
}

// Append persists rec for id. Appending an already-learned successful
// descriptor is a no-op so repeated healing runs do not bloat the file.
func (s *FileStore) Append(_ context.Context, id locator.Identity, rec Record) error {
	if err := rec.Descriptor.Validate(); err != nil {
		return fmt.Errorf("refusing to append invalid descriptor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Success && hasSuccess(s.records[id], rec.Descriptor) {
		return nil
	}

	line, err := json.Marshal(persistedRecord{
		Identity:  string(id),
		Strategy:  string(rec.Descriptor.Strategy),
		Value:     rec.Descriptor.Value,
		Success:   rec.Success,
		Timestamp: rec.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to encode store record: %w", err)
	}

	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek locator store: %w", err)
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to locator store: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync locator store: %w", err)
	}

	s.records[id] = append(s.records[id], rec)
	return nil
}

// Identities lists every identity with at least one record, sorted.
func (s *FileStore) Identities(_ context.Context) ([]locator.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]locator.Identity, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Close releases the backing file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func hasSuccess(recs []Record, d locator.Descriptor) bool {
	for _, r := range recs {
		if r.Success && r.Descriptor.Equal(d) {
			return true
		}
	}
	return false
}

func successNewestFirst(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if r.Success {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
