package listing

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
)

const (
	defaultArchiveDateFormat = "2006/01/02"
	defaultArchiveEmptyDays  = 7
	dayLayout                = "2006-01-02"
)

// Archive walks date-addressed listing pages backward in time, one day per
// page. {date} is formatted with date_format; {page} is the day offset.
type Archive struct {
	log logger.Logger
	now func() time.Time
}

// NewArchive constructs the archive strategy. now supplies the default start day.
func NewArchive(log logger.Logger, now func() time.Time) *Archive {
	if now == nil {
		now = time.Now
	}
	return &Archive{log: logger.Ensure(log), now: now}
}

func (s *Archive) Kind() string { return providers.ListingArchive }

// Discover walks from start_date (default today) down to earliest_date, or
// until max_consecutive_empty days in a row yield nothing new.
func (s *Archive) Discover(ctx context.Context, p providers.Provider, f Fetcher) iter.Seq2[domain.Thumbnail, error] {
	return func(yield func(domain.Thumbnail, error) bool) {
		l := p.Listing
		start, earliest, err := s.bounds(l)
		if err != nil {
			yield(domain.Thumbnail{}, &PageError{URL: l.URLTemplate, Err: err})
			return
		}

		format := l.DateFormat
		if format == "" {
			format = defaultArchiveDateFormat
		}
		tolerance := l.MaxConsecutiveEmpty
		if tolerance <= 0 {
			tolerance = defaultArchiveEmptyDays
		}

		day := func(pos int) time.Time { return start.AddDate(0, 0, -pos) }
		next := func(pos int) (pageRequest, bool) {
			if l.MaxPages > 0 && pos >= l.MaxPages {
				return pageRequest{}, false
			}
			d := day(pos)
			if !earliest.IsZero() && d.Before(earliest) {
				return pageRequest{}, false
			}
			u := expandTemplate(l.URLTemplate, map[string]string{
				"date": d.Format(format),
				"page": strconv.Itoa(pos),
			})
			return pageRequest{url: u, index: pos}, true
		}

		w := walker{
			fetch: f,
			parse: func(body []byte, req pageRequest) ([]domain.Thumbnail, error) {
				thumbs, err := ParseThumbnails(body, req.url, l, req.index)
				if err != nil {
					return nil, err
				}
				d := day(req.index)
				for i := range thumbs {
					if thumbs[i].ApproximateDate.IsZero() {
						thumbs[i].ApproximateDate = d
					}
				}
				return thumbs, nil
			},
			window:    pageWindow(p),
			tolerance: tolerance,
			log:       s.log,
			logFields: map[string]any{"provider_id": p.ID},
		}
		w.run(ctx, next, yield)
	}
}

func (s *Archive) bounds(l providers.Listing) (time.Time, time.Time, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if l.StartDate != "" {
		t, err := time.Parse(dayLayout, l.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("archive start_date: %w", err)
		}
		start = t
	}

	var earliest time.Time
	if l.EarliestDate != "" {
		t, err := time.Parse(dayLayout, l.EarliestDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("archive earliest_date: %w", err)
		}
		earliest = t
	}
	return start, earliest, nil
}
