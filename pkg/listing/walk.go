package listing

import (
	"context"
	"errors"
	"net/http"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/fetcher"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"golang.org/x/sync/errgroup"
)

// maxWalkPages caps any walk whose stop condition never fires.
const maxWalkPages = 10000

type pageRequest struct {
	url   string
	index int
}

type pageResult struct {
	thumbs []domain.Thumbnail
	err    error
}

// walker requests listing pages in windows of concurrent fetches and stops
// once tolerance consecutive pages are empty, duplicate, or failed.
type walker struct {
	fetch     Fetcher
	parse     func(body []byte, req pageRequest) ([]domain.Thumbnail, error)
	window    int
	tolerance int
	log       logger.Logger
	logFields map[string]any
}

// run walks positions 0.. through next until it is exhausted or the stop
// condition fires. It returns false when yield asked to stop.
func (w walker) run(ctx context.Context, next func(pos int) (pageRequest, bool), yield func(domain.Thumbnail, error) bool) bool {
	window := max(w.window, 1)
	tolerance := max(w.tolerance, 1)

	seen := make(map[string]struct{})
	prevSig := ""
	empties := 0

	for pos := 0; pos < maxWalkPages; pos += window {
		reqs := make([]pageRequest, 0, window)
		for i := pos; i < pos+window; i++ {
			req, ok := next(i)
			if !ok {
				break
			}
			reqs = append(reqs, req)
		}
		if len(reqs) == 0 {
			return true
		}

		results := w.fetchWindow(ctx, reqs)
		for i, res := range results {
			if ctx.Err() != nil {
				return true
			}
			req := reqs[i]

			switch {
			case res.err != nil && isEndOfListing(res.err):
				w.debug("listing page not found, treating as empty", "listing_page_missing", req, 0)
				empties++
				prevSig = ""
			case res.err != nil:
				if !yield(domain.Thumbnail{}, &PageError{URL: req.url, PageIndex: req.index, Err: res.err}) {
					return false
				}
				empties++
				prevSig = ""
			default:
				sig := pageSignature(res.thumbs)
				if sig != "" && sig == prevSig {
					w.debug("listing page repeats previous page", "listing_page_duplicate", req, len(res.thumbs))
					empties++
					break
				}
				prevSig = sig

				fresh := 0
				for _, t := range res.thumbs {
					if t.URL != "" {
						if _, dup := seen[t.URL]; dup {
							continue
						}
						seen[t.URL] = struct{}{}
						fresh++
					}
					if !yield(t, nil) {
						return false
					}
				}
				w.debug("listing page parsed", "listing_page", req, fresh)
				if fresh == 0 {
					empties++
				} else {
					empties = 0
				}
			}

			if empties >= tolerance {
				return true
			}
		}
		if len(reqs) < window {
			return true
		}
	}
	return true
}

// fetchWindow fetches and parses a window of pages concurrently; the fetch
// client enforces the site's admission limit and start spacing.
func (w walker) fetchWindow(ctx context.Context, reqs []pageRequest) []pageResult {
	results := make([]pageResult, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			body, err := w.fetch.Fetch(ctx, req.url)
			if err != nil {
				results[i] = pageResult{err: err}
				return nil
			}
			thumbs, err := w.parse(body, req)
			results[i] = pageResult{thumbs: thumbs, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (w walker) debug(msg, event string, req pageRequest, n int) {
	fields := map[string]any{
		"url":        req.url,
		"page_index": req.index,
		"thumbnails": n,
	}
	for k, v := range w.logFields {
		fields[k] = v
	}
	logger.Ensure(w.log).DebugObj(msg, event, fields)
}

// isEndOfListing reports whether a page error means the listing ran out.
func isEndOfListing(err error) bool {
	var pe *PageError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	switch fetcher.StatusOf(err) {
	case http.StatusNotFound, http.StatusGone:
		return true
	}
	return false
}
