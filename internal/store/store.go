// Package store persists a site's articles, thumbnail index and failure log
// as flat CSV tables:
//
//	<root>/<site>/articles.csv
//	<root>/<site>/thumbnails.csv
//	<root>/<site>/failed/YYYY-MM-DD.csv
//
// Articles and thumbnails are unique by url; failures are append-only and
// partitioned by UTC day. Every write replaces the target file atomically.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
)

const (
	articlesFile   = "articles.csv"
	thumbnailsFile = "thumbnails.csv"
	failedDir      = "failed"
	dayLayout      = "2006-01-02"
)

// Store is the deduplicating store for one site.
type Store struct {
	mu   sync.Mutex
	dir  string
	site string
}

// Open prepares the site directory under root. A directory that cannot be
// created is a fatal configuration error.
func Open(root, site string) (*Store, error) {
	site = strings.TrimSpace(site)
	if site == "" || strings.ContainsAny(site, `/\`) || site == "." || site == ".." {
		return nil, fmt.Errorf("%w: invalid site id %q for store", domain.ErrFatalConfig, site)
	}
	dir := filepath.Join(root, site)
	if err := os.MkdirAll(filepath.Join(dir, failedDir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %w", domain.ErrFatalConfig, err)
	}
	return &Store{dir: dir, site: site}, nil
}

// Dir returns the site directory.
func (s *Store) Dir() string { return s.dir }

// ExistingURLs returns the url of every stored article.
func (s *Store) ExistingURLs() (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readTable(s.path(articlesFile), articleHeader)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		out[row[0]] = struct{}{}
	}
	return out, nil
}

// AppendArticles merges records into the articles table by url. An existing
// row is replaced in place when the incoming record was retrieved at the
// same time or later; new urls are appended in input order.
func (s *Store) AppendArticles(records []domain.Article) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(articlesFile)
	rows, err := readTable(path, articleHeader)
	if err != nil {
		return err
	}

	existing := make([]domain.Article, 0, len(rows)+len(records))
	for _, row := range rows {
		a, err := decodeArticle(row)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		existing = append(existing, a)
	}

	merged := mergeByURL(existing, records,
		func(a domain.Article) string { return a.URL },
		func(old, next domain.Article) bool { return !next.RetrievedAt.Before(old.RetrievedAt) },
	)

	out := make([][]string, 0, len(merged))
	for _, a := range merged {
		out = append(out, encodeArticle(a))
	}
	return writeTable(path, articleHeader, out)
}

// AppendThumbnails merges thumbnails into the url index, last write wins.
func (s *Store) AppendThumbnails(records []domain.Thumbnail) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(thumbnailsFile)
	rows, err := readTable(path, thumbnailHeader)
	if err != nil {
		return err
	}
	existing := make([]domain.Thumbnail, 0, len(rows))
	for _, row := range rows {
		t, err := decodeThumbnail(row)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		existing = append(existing, t)
	}

	merged := mergeByURL(existing, records,
		func(t domain.Thumbnail) string { return t.URL },
		func(domain.Thumbnail, domain.Thumbnail) bool { return true },
	)
	out := make([][]string, 0, len(merged))
	for _, t := range merged {
		out = append(out, encodeThumbnail(t))
	}
	return writeTable(path, thumbnailHeader, out)
}

// AppendFailures appends records to their day partitions.
func (s *Store) AppendFailures(records []domain.Failure) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay := make(map[string][][]string)
	var days []string
	for _, f := range records {
		day := f.Timestamp.UTC().Format(dayLayout)
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], encodeFailure(f))
	}

	for _, day := range days {
		path := s.failurePath(day)
		rows, err := readTable(path, failureHeader)
		if err != nil {
			return err
		}
		if err := writeTable(path, failureHeader, append(rows, byDay[day]...)); err != nil {
			return err
		}
	}
	return nil
}

// ReadArticles returns the stored articles sorted by published_date then url.
func (s *Store) ReadArticles() ([]domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(articlesFile)
	rows, err := readTable(path, articleHeader)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Article, 0, len(rows))
	for _, row := range rows {
		a, err := decodeArticle(row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PublishedDate.Equal(out[j].PublishedDate) {
			return out[i].PublishedDate.Before(out[j].PublishedDate)
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

// ReadThumbnails returns the persisted thumbnail index in stored order.
func (s *Store) ReadThumbnails() ([]domain.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(thumbnailsFile)
	rows, err := readTable(path, thumbnailHeader)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Thumbnail, 0, len(rows))
	for _, row := range rows {
		t, err := decodeThumbnail(row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// ReadFailures returns the failures recorded on the given UTC day.
func (s *Store) ReadFailures(day time.Time) ([]domain.Failure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.failurePath(day.UTC().Format(dayLayout))
	rows, err := readTable(path, failureHeader)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Failure, 0, len(rows))
	for _, row := range rows {
		f, err := decodeFailure(row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) failurePath(day string) string {
	return filepath.Join(s.dir, failedDir, day+".csv")
}

// mergeByURL replaces existing entries in place and appends new keys in
// order. Duplicate keys within next collapse onto one row.
func mergeByURL[T any](existing, next []T, key func(T) string, replace func(old, next T) bool) []T {
	pos := make(map[string]int, len(existing)+len(next))
	out := make([]T, 0, len(existing)+len(next))
	for _, rec := range existing {
		k := key(rec)
		if i, dup := pos[k]; dup {
			out[i] = rec
			continue
		}
		pos[k] = len(out)
		out = append(out, rec)
	}
	for _, rec := range next {
		k := key(rec)
		if i, ok := pos[k]; ok {
			if replace(out[i], rec) {
				out[i] = rec
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, rec)
	}
	return out
}
