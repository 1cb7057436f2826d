package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
)

var (
	articleHeader   = []string{"url", "title", "body", "published_date", "tags", "country", "source_name", "retrieved_at"}
	thumbnailHeader = []string{"url", "title", "approximate_date", "page_index"}
	failureHeader   = []string{"url", "stage", "reason", "timestamp"}
)

// readTable returns the data rows of a CSV table; a missing file is empty.
func readTable(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if !slices.Equal(rows[0], header) {
		return nil, fmt.Errorf("read %s: unexpected header %v", path, rows[0])
	}
	return rows[1:], nil
}

// writeTable atomically replaces path with header and rows. The data is
// written to a temp file in the same directory, synced, then renamed over
// the target, so readers see either the old or the new table. A failed
// write is a fatal configuration error.
func writeTable(path string, header []string, rows [][]string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %w", domain.ErrFatalConfig, path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err = w.Write(header); err == nil {
		err = w.WriteAll(rows)
	}
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", domain.ErrFatalConfig, path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", domain.ErrFatalConfig, path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrFatalConfig, path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", domain.ErrFatalConfig, path, err)
	}
	return nil
}

func encodeArticle(a domain.Article) []string {
	return []string{
		a.URL,
		a.Title,
		a.Body,
		formatDay(a.PublishedDate),
		JoinTags(a.Tags),
		a.Country,
		a.SourceName,
		formatTime(a.RetrievedAt),
	}
}

func decodeArticle(row []string) (domain.Article, error) {
	published, err := parseDay(row[3])
	if err != nil {
		return domain.Article{}, fmt.Errorf("article %s: published_date: %w", row[0], err)
	}
	retrieved, err := parseTime(row[7])
	if err != nil {
		return domain.Article{}, fmt.Errorf("article %s: retrieved_at: %w", row[0], err)
	}
	return domain.Article{
		URL:           row[0],
		Title:         row[1],
		Body:          row[2],
		PublishedDate: published,
		Tags:          SplitTags(row[4]),
		Country:       row[5],
		SourceName:    row[6],
		RetrievedAt:   retrieved,
	}, nil
}

func encodeThumbnail(t domain.Thumbnail) []string {
	return []string{t.URL, t.Title, formatTime(t.ApproximateDate), strconv.Itoa(t.PageIndex)}
}

func decodeThumbnail(row []string) (domain.Thumbnail, error) {
	date, err := parseTime(row[2])
	if err != nil {
		return domain.Thumbnail{}, fmt.Errorf("thumbnail %s: approximate_date: %w", row[0], err)
	}
	idx, err := strconv.Atoi(row[3])
	if err != nil {
		return domain.Thumbnail{}, fmt.Errorf("thumbnail %s: page_index: %w", row[0], err)
	}
	return domain.Thumbnail{URL: row[0], Title: row[1], ApproximateDate: date, PageIndex: idx}, nil
}

func encodeFailure(f domain.Failure) []string {
	return []string{f.URL, string(f.Stage), f.Reason, formatTime(f.Timestamp)}
}

func decodeFailure(row []string) (domain.Failure, error) {
	ts, err := parseTime(row[3])
	if err != nil {
		return domain.Failure{}, fmt.Errorf("failure %s: timestamp: %w", row[0], err)
	}
	return domain.Failure{URL: row[0], Stage: domain.Stage(row[1]), Reason: row[2], Timestamp: ts}, nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dayLayout)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dayLayout, s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

const (
	tagSep    = '|'
	tagEscape = '\\'
)

// JoinTags serializes tags into one cell. The separator and escape
// characters inside a tag are backslash-escaped.
func JoinTags(tags []string) string {
	var b strings.Builder
	for i, t := range tags {
		if i > 0 {
			b.WriteByte(tagSep)
		}
		for _, r := range t {
			if r == tagSep || r == tagEscape {
				b.WriteByte(tagEscape)
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitTags is the inverse of JoinTags. An empty cell is no tags.
func SplitTags(s string) []string {
	if s == "" {
		return nil
	}
	var (
		tags    []string
		cur     strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == tagEscape:
			escaped = true
		case r == tagSep:
			tags = append(tags, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(tags, cur.String())
}
