package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func article(url string, published, retrieved time.Time, tags ...string) domain.Article {
	return domain.Article{
		URL:           url,
		Title:         "Title " + url,
		Body:          "line one\nline two, with \"quotes\"",
		PublishedDate: published,
		Tags:          tags,
		Country:       "IN",
		SourceName:    "Example",
		RetrievedAt:   retrieved,
	}
}

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func TestTagsRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir(), "example")
	require.NoError(t, err)

	require.NoError(t, s.AppendArticles([]domain.Article{article("https://example.com/a", day(1), day(2), "a", "b", "c")}))
	got, err := s.ReadArticles()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a", "b", "c"}, got[0].Tags)
	assert.Equal(t, "line one\nline two, with \"quotes\"", got[0].Body)
	assert.Equal(t, day(1), got[0].PublishedDate)
	assert.True(t, day(2).Equal(got[0].RetrievedAt))
}

func TestJoinTagsEscapesSeparators(t *testing.T) {
	tags := []string{"left|right", `back\slash`, "plain"}
	joined := JoinTags(tags)
	assert.Equal(t, `left\|right|back\\slash|plain`, joined)
	assert.Equal(t, tags, SplitTags(joined))
	assert.Nil(t, SplitTags(""))
}

func TestAppendArticlesNeverDuplicatesURL(t *testing.T) {
	s, err := Open(t.TempDir(), "example")
	require.NoError(t, err)

	require.NoError(t, s.AppendArticles([]domain.Article{
		article("https://example.com/a", day(1), day(1)),
		article("https://example.com/b", day(1), day(1)),
	}))

	updated := article("https://example.com/a", day(1), day(3), "fresh")
	updated.Title = "Updated"
	stale := article("https://example.com/b", day(1), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	stale.Title = "Stale"
	require.NoError(t, s.AppendArticles([]domain.Article{
		updated,
		stale,
		article("https://example.com/c", day(2), day(3)),
		article("https://example.com/c", day(2), day(4)),
	}))

	got, err := s.ReadArticles()
	require.NoError(t, err)
	require.Len(t, got, 3)

	byURL := map[string]domain.Article{}
	for _, a := range got {
		_, dup := byURL[a.URL]
		require.False(t, dup, a.URL)
		byURL[a.URL] = a
	}
	assert.Equal(t, "Updated", byURL["https://example.com/a"].Title)
	assert.Equal(t, []string{"fresh"}, byURL["https://example.com/a"].Tags)
	assert.Equal(t, "Title https://example.com/b", byURL["https://example.com/b"].Title)
	assert.True(t, day(4).Equal(byURL["https://example.com/c"].RetrievedAt))

	urls, err := s.ExistingURLs()
	require.NoError(t, err)
	assert.Len(t, urls, 3)
	assert.Contains(t, urls, "https://example.com/c")
}

func TestReadArticlesSortsByDateThenURL(t *testing.T) {
	s, err := Open(t.TempDir(), "example")
	require.NoError(t, err)
	require.NoError(t, s.AppendArticles([]domain.Article{
		article("https://example.com/z", day(2), day(5)),
		article("https://example.com/y", day(1), day(5)),
		article("https://example.com/x", day(2), day(5)),
		article("https://example.com/undated", time.Time{}, day(5)),
	}))

	got, err := s.ReadArticles()
	require.NoError(t, err)
	var urls []string
	for _, a := range got {
		urls = append(urls, a.URL)
	}
	assert.Equal(t, []string{
		"https://example.com/undated",
		"https://example.com/y",
		"https://example.com/x",
		"https://example.com/z",
	}, urls)
}

func TestAppendFailuresPartitionsByDay(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "example")
	require.NoError(t, err)

	late := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	require.NoError(t, s.AppendFailures([]domain.Failure{
		{URL: "https://example.com/a", Stage: domain.StageExtraction, Reason: "no body", Timestamp: day(1).Add(time.Hour)},
		{URL: "https://example.com/b", Stage: domain.StageValidation, Reason: "empty title", Timestamp: late},
	}))
	require.NoError(t, s.AppendFailures([]domain.Failure{
		{URL: "https://example.com/a", Stage: domain.StageExtraction, Reason: "no body", Timestamp: day(1).Add(2 * time.Hour)},
	}))

	first, err := s.ReadFailures(day(1))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, domain.StageExtraction, first[0].Stage)
	assert.Equal(t, first[0].URL, first[1].URL)

	second, err := s.ReadFailures(day(2))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "empty title", second[0].Reason)

	assert.FileExists(t, filepath.Join(root, "example", "failed", "2024-03-01.csv"))
	assert.FileExists(t, filepath.Join(root, "example", "failed", "2024-03-02.csv"))
}

func TestThumbnailIndexMergesByURL(t *testing.T) {
	s, err := Open(t.TempDir(), "example")
	require.NoError(t, err)

	require.NoError(t, s.AppendThumbnails([]domain.Thumbnail{
		{URL: "https://example.com/a", Title: "A", PageIndex: 1},
		{URL: "https://example.com/b", Title: "B", PageIndex: 1, ApproximateDate: day(1)},
	}))
	require.NoError(t, s.AppendThumbnails([]domain.Thumbnail{{URL: "https://example.com/a", Title: "A2", PageIndex: 3}}))

	got, err := s.ReadThumbnails()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A2", got[0].Title)
	assert.Equal(t, 3, got[0].PageIndex)
	assert.True(t, day(1).Equal(got[1].ApproximateDate))
}

func TestWritesLeaveNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "example")
	require.NoError(t, err)
	require.NoError(t, s.AppendArticles([]domain.Article{article("https://example.com/a", day(1), day(1))}))

	entries, err := os.ReadDir(filepath.Join(root, "example"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"articles.csv", "failed"}, names)
}

func TestCorruptTableIsReported(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "example")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "example", "articles.csv"), []byte("id,name\n1,x\n"), 0o644))

	_, err = s.ExistingURLs()
	assert.Error(t, err)
}

func TestOpenRejectsBadSite(t *testing.T) {
	_, err := Open(t.TempDir(), "../escape")
	assert.ErrorIs(t, err, domain.ErrFatalConfig)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	_, err = Open(blocker, "example")
	assert.ErrorIs(t, err, domain.ErrFatalConfig)
}

func TestEmptyStoreReads(t *testing.T) {
	s, err := Open(t.TempDir(), "example")
	require.NoError(t, err)

	urls, err := s.ExistingURLs()
	require.NoError(t, err)
	assert.Empty(t, urls)

	got, err := s.ReadFailures(day(1))
	require.NoError(t, err)
	assert.Empty(t, got)
}
