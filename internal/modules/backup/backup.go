// Package backup dumps the document store to zip archives and restores them.
package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
	"github.com/mx-space/diary/internal/store"
)

const (
	entrySuffix = ".bson"
	fileLayout  = "2006-01-02T15-04-05"
)

// Uploader stores a finished archive somewhere off the host.
type Uploader interface {
	Upload(ctx context.Context, key string, payload []byte) error
}

// Item describes one archive in the backups directory.
type Item struct {
	Filename  string    `json:"filename"`
	Size      string    `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Artifact is a freshly written archive.
type Artifact struct {
	Filename string
	Path     string
	Data     []byte
	Counts   map[string]int
}

type Service struct {
	st          store.Store
	dir         string
	collections []string
	uploader    Uploader
	keyTemplate string
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(st store.Store, dir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		st:          st,
		dir:         dir,
		collections: models.AllCollections,
		keyTemplate: defaultKeyTemplate,
		logger:      logger.Named("BackupService"),
		now:         time.Now,
	}
}

// SetUploader enables off-host copies. key is an object key template, see renderObjectKey.
func (s *Service) SetUploader(u Uploader, key string) {
	s.uploader = u
	if strings.TrimSpace(key) != "" {
		s.keyTemplate = key
	}
}

// Dump writes every collection into a zip archive, one "{collection}.bson"
// entry each holding the documents back to back.
func (s *Service) Dump(ctx context.Context, w io.Writer) (map[string]int, error) {
	zw := zip.NewWriter(w)
	counts := make(map[string]int, len(s.collections))
	for _, coll := range s.collections {
		var docs []bson.M
		if err := s.st.Find(ctx, coll, store.Query{Sort: []store.SortField{store.Asc("id")}}, &docs); err != nil {
			return nil, apperr.Store("read "+coll, err)
		}
		f, err := zw.Create(coll + entrySuffix)
		if err != nil {
			return nil, fmt.Errorf("create zip entry %s: %w", coll, err)
		}
		for _, d := range docs {
			raw, err := bson.Marshal(d)
			if err != nil {
				return nil, fmt.Errorf("encode %s document: %w", coll, err)
			}
			if _, err := f.Write(raw); err != nil {
				return nil, fmt.Errorf("write %s: %w", coll, err)
			}
		}
		counts[coll] = len(docs)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return counts, nil
}

// Create dumps the store into the backups directory and uploads the archive
// when an uploader is configured. A failed upload keeps the local file.
func (s *Service) Create(ctx context.Context) (*Artifact, error) {
	var buf bytes.Buffer
	counts, err := s.Dump(ctx, &buf)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	now := s.now()
	filename := fmt.Sprintf("backup-%s.zip", now.Format(fileLayout))
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}
	art := &Artifact{Filename: filename, Path: path, Data: buf.Bytes(), Counts: counts}
	s.logger.Info("backup written", zap.String("file", filename), zap.Int("bytes", buf.Len()))

	if s.uploader != nil {
		key := renderObjectKey(s.keyTemplate, filename, now)
		if err := s.uploader.Upload(ctx, key, art.Data); err != nil {
			s.logger.Warn("backup upload failed", zap.String("key", key), zap.Error(err))
			return art, fmt.Errorf("upload backup: %w", err)
		}
		s.logger.Info("backup uploaded", zap.String("key", key))
	}
	return art, nil
}

// Restore replaces the contents of every collection present in the archive.
// Entries for unknown collections are ignored; collections missing from the
// archive are left untouched.
func (s *Service) Restore(ctx context.Context, data []byte) (map[string]int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.Validation("invalid zip file")
	}

	entries := make(map[string][]any, len(zr.File))
	for _, f := range zr.File {
		coll := strings.TrimSuffix(filepath.Base(f.Name), entrySuffix)
		if !strings.HasSuffix(f.Name, entrySuffix) || !s.allowed(coll) {
			continue
		}
		docs, err := readEntry(f)
		if err != nil {
			return nil, apperr.Validation("invalid backup entry %s: %v", f.Name, err)
		}
		entries[coll] = docs
	}
	if len(entries) == 0 {
		return nil, apperr.Validation("backup contains no known collections")
	}

	counts := make(map[string]int, len(entries))
	for _, coll := range s.collections {
		docs, ok := entries[coll]
		if !ok {
			continue
		}
		if _, err := s.st.Delete(ctx, coll, bson.M{}); err != nil {
			return counts, apperr.Store("clear "+coll, err)
		}
		if len(docs) > 0 {
			if err := s.st.InsertMany(ctx, coll, docs); err != nil {
				return counts, apperr.Store("restore "+coll, err)
			}
		}
		counts[coll] = len(docs)
	}
	s.logger.Info("backup restored", zap.Any("counts", counts))
	return counts, nil
}

// RestoreFile restores an archive from the backups directory.
func (s *Service) RestoreFile(ctx context.Context, filename string) (map[string]int, error) {
	data, err := s.Read(filename)
	if err != nil {
		return nil, err
	}
	return s.Restore(ctx, data)
}

// List returns the archives in the backups directory, newest first.
func (s *Service) List() ([]Item, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, Item{Filename: e.Name(), Size: formatSize(info.Size()), CreatedAt: info.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Filename > items[j].Filename })
	return items, nil
}

// Read loads one archive by file name.
func (s *Service) Read(filename string) ([]byte, error) {
	name, err := cleanName(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("backup not found")
	}
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return data, nil
}

// Remove deletes one archive. Missing files are not an error.
func (s *Service) Remove(filename string) error {
	name, err := cleanName(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove backup: %w", err)
	}
	return nil
}

func (s *Service) allowed(coll string) bool {
	for _, c := range s.collections {
		if c == coll {
			return true
		}
	}
	return false
}

func readEntry(f *zip.File) ([]any, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var docs []any
	for {
		raw, err := bson.NewFromIOReader(rc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		var d bson.M
		if err := bson.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
}

func cleanName(filename string) (string, error) {
	name := strings.TrimSpace(filepath.Base(filename))
	if name == "" || name == "." || !strings.HasSuffix(name, ".zip") {
		return "", apperr.Validation("invalid filename")
	}
	return name, nil
}

func formatSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
