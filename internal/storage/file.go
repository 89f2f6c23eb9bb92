package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "mcwatch/pkg/logx"
)

// fileStore keeps the whole job document in one JSON file.
//
// Every mutation is read-modify-write under one mutex, and writes go through
// a tmp file + rename so a crash mid-write never leaves a corrupt document.
type fileStore struct {
	log  logx.Logger
	mu   sync.Mutex
	path string
}

// rawDoc preserves entries we cannot parse so merges and removals never
// destroy data written by a newer (or older) version of the program.
type rawDoc map[string]map[string]json.RawMessage

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) EnsureExists(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.log.Info("status file not found; creating", logx.String("path", s.path))
	return s.writeLocked(rawDoc{})
}

func (s *fileStore) SaveJobs(ctx context.Context, partial Jobs) error {
	_ = ctx
	if len(partial) == 0 {
		return nil
	}
	for k := range partial {
		if !ValidKind(k) {
			return fmt.Errorf("save: invalid job kind %q", string(k))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	for kind, recs := range partial {
		bucket := doc[string(kind)]
		if bucket == nil {
			bucket = map[string]json.RawMessage{}
			doc[string(kind)] = bucket
		}
		for id, rec := range recs {
			b, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("save: marshal %s/%s: %w", kind, id, err)
			}
			bucket[id] = b
		}
	}
	return s.writeLocked(doc)
}

func (s *fileStore) LoadJobs(ctx context.Context) (Jobs, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	out := Jobs{}
	for cat, bucket := range doc {
		kind := Kind(cat)
		if !ValidKind(kind) {
			s.log.Warn("dropping unknown job category", logx.String("category", cat), logx.Int("entries", len(bucket)))
			continue
		}
		for id, raw := range bucket {
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				s.log.Warn("dropping malformed job record", logx.String("category", cat), logx.String("id", id), logx.Err(err))
				continue
			}
			if err := rec.Validate(kind); err != nil {
				s.log.Warn("dropping invalid job record", logx.String("category", cat), logx.String("id", id), logx.Err(err))
				continue
			}
			if out[kind] == nil {
				out[kind] = map[string]Record{}
			}
			out[kind][id] = rec
		}
	}
	return out, nil
}

func (s *fileStore) RemoveJob(ctx context.Context, id string) error {
	_ = ctx
	if strings.TrimSpace(id) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}

	changed := false
	for cat, bucket := range doc {
		if _, ok := bucket[id]; !ok {
			continue
		}
		delete(bucket, id)
		changed = true
		if len(bucket) == 0 {
			delete(doc, cat)
		}
	}
	if !changed {
		return nil
	}
	return s.writeLocked(doc)
}

// Compact rewrites the document, shedding entries that no longer parse.
func (s *fileStore) Compact(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}

	clean := rawDoc{}
	for cat, bucket := range doc {
		kind := Kind(cat)
		if !ValidKind(kind) {
			continue
		}
		for id, raw := range bucket {
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			if err := rec.Validate(kind); err != nil {
				continue
			}
			if clean[cat] == nil {
				clean[cat] = map[string]json.RawMessage{}
			}
			clean[cat][id] = raw
		}
	}
	return s.writeLocked(clean)
}

func (s *fileStore) readLocked() (rawDoc, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rawDoc{}, nil
		}
		return nil, err
	}
	if len(b) == 0 {
		return rawDoc{}, nil
	}
	var doc rawDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("status file %s: %w", s.path, err)
	}
	if doc == nil {
		doc = rawDoc{}
	}
	return doc, nil
}

func (s *fileStore) writeLocked(doc rawDoc) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
