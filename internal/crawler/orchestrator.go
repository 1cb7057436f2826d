// Package crawler drives a site's harvest: discovery through a listing
// strategy, the update-mode diff against the store, concurrent extraction
// and batched persistence.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/fetcher"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/internal/store"
	"github.com/Adda-Baaj/taja-khobor/internal/validate"
	"github.com/Adda-Baaj/taja-khobor/pkg/cleaner"
	"github.com/Adda-Baaj/taja-khobor/pkg/listing"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
	"github.com/Adda-Baaj/taja-khobor/pkg/publishers"
	"github.com/google/uuid"
)

const (
	defaultBatchSize = 200
	publishTimeout   = 10 * time.Second
)

// Options wires the orchestrator's collaborators.
type Options struct {
	DataDir           string
	BatchSize         int
	PersistThumbnails bool

	Fetchers  FetcherFactory
	Listings  listing.Registry
	Cleaners  *cleaner.Registry
	Extractor ArticleExtractor
	Publisher EventPublisher

	Log logger.Logger
	Now func() time.Time
}

// Orchestrator runs site harvests. It holds no per-run state, so one
// instance may drive several sites concurrently.
type Orchestrator struct {
	opts Options
	log  logger.Logger
}

// New validates opts and fills in defaults.
func New(opts Options) (*Orchestrator, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data dir is empty", domain.ErrFatalConfig)
	}
	if opts.Fetchers == nil {
		return nil, fmt.Errorf("%w: no fetcher factory configured", domain.ErrFatalConfig)
	}
	log := logger.Ensure(opts.Log)
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Listings == nil {
		opts.Listings = listing.DefaultRegistry(log)
	}
	if opts.Cleaners == nil {
		opts.Cleaners = cleaner.Default()
	}
	if opts.Extractor == nil {
		opts.Extractor = Extractor{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{opts: opts, log: log}, nil
}

// NetworkFetchers returns a factory building clients with fetcher.New.
func NetworkFetchers(opts fetcher.Options) FetcherFactory {
	return func(ctx context.Context, p providers.Provider) (fetcher.Fetcher, error) {
		return fetcher.New(ctx, p, opts)
	}
}

// runSession is the transient state of one run.
type runSession struct {
	summary domain.RunSummary
	log     logger.Logger
	st      *store.Store
	pending []domain.Failure
	staged  []domain.Article
}

func (s *runSession) transition(to domain.State) {
	from := s.summary.State
	s.summary.State = to
	s.log.DebugObj("run state changed", "run_state", map[string]any{
		"from": string(from),
		"to":   string(to),
	})
}

func (s *runSession) fail(url string, stage domain.Stage, reason string, at time.Time) {
	s.summary.Failed++
	s.pending = append(s.pending, domain.Failure{URL: url, Stage: stage, Reason: reason, Timestamp: at.UTC()})
	s.log.DebugObj("record failed", "record_failed", map[string]any{
		"url":    url,
		"stage":  string(stage),
		"reason": reason,
	})
}

// Run harvests one site. Only fatal configuration and store errors, or
// cancellation, are returned; per-record failures are logged to the store's
// failure table and counted in the summary.
func (o *Orchestrator) Run(ctx context.Context, p providers.Provider, mode domain.RunMode) (domain.RunSummary, error) {
	p = providers.Sanitize(p)
	started := o.opts.Now()
	resolved, modeOK := domain.ParseRunMode(string(mode))
	sess := &runSession{
		summary: domain.RunSummary{
			RunID:      uuid.NewString(),
			ProviderID: p.ID,
			Mode:       resolved,
			State:      domain.StateIdle,
			StartedAt:  started.UTC(),
		},
	}
	sess.log = o.log.With(map[string]any{"provider_id": p.ID, "run_id": sess.summary.RunID})
	sess.log.InfoObj("run starting", "run_start", map[string]any{"mode": string(mode)})

	var err error
	if !modeOK {
		err = fmt.Errorf("%w: unknown run mode %q", domain.ErrFatalConfig, mode)
	} else {
		err = o.run(ctx, p, resolved, sess)
	}
	if err != nil {
		sess.transition(domain.StateFailed)
	}
	summary := sess.summary

	finished := o.opts.Now()
	summary.FinishedAt = finished.UTC()
	summary.Duration = finished.Sub(started)

	fields := map[string]any{
		"state":        string(summary.State),
		"discovered":   summary.Discovered,
		"skipped":      summary.Skipped,
		"fetched":      summary.Fetched,
		"extracted":    summary.Extracted,
		"failed":       summary.Failed,
		"failure_rate": summary.FailureRate(),
		"duration_ms":  summary.Duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		sess.log.ErrorObj("run failed", "run_failed", fields)
	} else {
		sess.log.InfoObj("run completed", "run_complete", fields)
	}

	o.publish(ctx, sess.log, publishers.SummaryEvent(summary, finished))
	return summary, err
}

func (o *Orchestrator) run(ctx context.Context, p providers.Provider, mode domain.RunMode, sess *runSession) error {
	if err := providers.Validate(p); err != nil {
		return err
	}
	strategy, err := o.opts.Listings.StrategyFor(p)
	if err != nil {
		return err
	}
	pipeline, err := o.opts.Cleaners.Resolve(p)
	if err != nil {
		return err
	}
	st, err := store.Open(o.opts.DataDir, p.ID)
	if err != nil {
		return err
	}
	sess.st = st

	f, err := o.opts.Fetchers(ctx, p)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			sess.log.WarnObj("fetch client close failed", "fetcher_close_error", map[string]any{"error": cerr.Error()})
		}
	}()

	sess.transition(domain.StateDiscovering)
	thumbs, err := o.discover(ctx, p, strategy, f, sess)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if o.opts.PersistThumbnails {
		if err := st.AppendThumbnails(thumbs); err != nil {
			return err
		}
	}

	sess.transition(domain.StateDiffing)
	todo := thumbs
	if mode == domain.ModeUpdate {
		existing, err := st.ExistingURLs()
		if err != nil {
			return fmt.Errorf("%w: read existing urls: %w", domain.ErrFatalConfig, err)
		}
		todo = make([]domain.Thumbnail, 0, len(thumbs))
		for _, th := range thumbs {
			if _, ok := existing[th.URL]; ok {
				sess.summary.Skipped++
				continue
			}
			todo = append(todo, th)
		}
	}
	sess.log.InfoObj("discovery finished", "discovery_complete", map[string]any{
		"discovered": sess.summary.Discovered,
		"skipped":    sess.summary.Skipped,
		"to_extract": len(todo),
	})

	sess.transition(domain.StateExtracting)
	if err := o.extract(ctx, p, f, pipeline, todo, sess); err != nil {
		return err
	}

	// Staged records are flushed even when the run was canceled.
	sess.transition(domain.StatePersisting)
	if err := o.flush(ctx, sess); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	sess.transition(domain.StateDone)
	return nil
}

// discover drains the listing strategy, validating and de-duplicating
// thumbnails. Failures reach the store as they are recorded.
func (o *Orchestrator) discover(ctx context.Context, p providers.Provider, strategy listing.Strategy, f listing.Fetcher, sess *runSession) ([]domain.Thumbnail, error) {
	var thumbs []domain.Thumbnail
	seen := make(map[string]struct{})

	for th, err := range strategy.Discover(ctx, p, f) {
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			url := p.Listing.URLTemplate
			var pe *listing.PageError
			if errors.As(err, &pe) {
				url = pe.URL
			}
			sess.fail(url, domain.StageListing, err.Error(), o.opts.Now())
			if err := o.flushFailures(sess); err != nil {
				return nil, err
			}
			continue
		}

		sess.summary.Discovered++
		out := validate.Thumbnail(th)
		if !out.OK {
			sess.fail(th.URL, domain.StageValidation, out.Reason, o.opts.Now())
			if err := o.flushFailures(sess); err != nil {
				return nil, err
			}
			continue
		}
		if _, dup := seen[out.Record.URL]; dup {
			continue
		}
		seen[out.Record.URL] = struct{}{}
		thumbs = append(thumbs, out.Record)
	}
	return thumbs, nil
}

type extractResult struct {
	thumb    domain.Thumbnail
	article  *domain.Article
	failure  *domain.Failure
	fetched  bool
	canceled bool
}

// extract runs a worker per concurrency slot. The fetch client enforces the
// site's admission limit and request spacing; results are collected on the
// calling goroutine, which owns the session.
func (o *Orchestrator) extract(ctx context.Context, p providers.Provider, f fetcher.Fetcher, pl *cleaner.Pipeline, todo []domain.Thumbnail, sess *runSession) error {
	if len(todo) == 0 {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobCh := make(chan domain.Thumbnail)
	resCh := make(chan extractResult)
	var wg sync.WaitGroup

	workerCount := min(len(todo), max(p.Concurrency, 1))
	for workerID := range workerCount {
		wg.Add(1)
		go o.articleWorker(runCtx, sess.log, p, f, pl, jobCh, resCh, &wg, workerID)
	}

	go func() {
		defer close(jobCh)
		for _, th := range todo {
			select {
			case <-runCtx.Done():
				return
			case jobCh <- th:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(resCh)
	}()

	var fatal error
	for res := range resCh {
		if fatal != nil || res.canceled {
			continue
		}
		if res.fetched {
			sess.summary.Fetched++
		}
		switch {
		case res.failure != nil:
			sess.fail(res.failure.URL, res.failure.Stage, res.failure.Reason, res.failure.Timestamp)
			if err := o.flushFailures(sess); err != nil {
				fatal = err
				cancel()
				continue
			}
		case res.article != nil:
			sess.staged = append(sess.staged, *res.article)
		}

		if len(sess.staged) >= o.opts.BatchSize {
			sess.transition(domain.StatePersisting)
			if err := o.flush(ctx, sess); err != nil {
				fatal = err
				cancel()
				continue
			}
			sess.transition(domain.StateExtracting)
		}
	}
	return fatal
}

// articleWorker fetches, extracts, cleans and validates articles from jobCh.
func (o *Orchestrator) articleWorker(
	ctx context.Context,
	log logger.Logger,
	p providers.Provider,
	f fetcher.Fetcher,
	pl *cleaner.Pipeline,
	jobCh <-chan domain.Thumbnail,
	resCh chan<- extractResult,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for th := range jobCh {
		res := o.process(ctx, log, p, f, pl, th, workerID)
		// The collector drains resCh until every worker exits.
		resCh <- res
	}
}

func (o *Orchestrator) process(ctx context.Context, log logger.Logger, p providers.Provider, f fetcher.Fetcher, pl *cleaner.Pipeline, th domain.Thumbnail, workerID int) extractResult {
	res := extractResult{thumb: th}
	failed := func(stage domain.Stage, reason string) extractResult {
		res.failure = &domain.Failure{URL: th.URL, Stage: stage, Reason: reason, Timestamp: o.opts.Now().UTC()}
		return res
	}

	body, err := f.Fetch(ctx, th.URL)
	if err != nil {
		if ctx.Err() != nil {
			res.canceled = true
			return res
		}
		log.WarnObj("article fetch failed", "article_fetch_error", map[string]any{
			"worker_id": workerID,
			"url":       th.URL,
			"error":     err.Error(),
		})
		return failed(domain.StageExtraction, err.Error())
	}
	res.fetched = true

	raw, err := o.opts.Extractor.Extract(body, p, th, o.opts.Now())
	if err != nil {
		var ee *ExtractionError
		if errors.As(err, &ee) {
			return failed(domain.StageExtraction, ee.Reason)
		}
		return failed(domain.StageExtraction, err.Error())
	}

	out := validate.Article(pl.Clean(raw), p)
	if !out.OK {
		return failed(domain.StageValidation, out.Reason)
	}
	res.article = &out.Record
	return res
}

// flush persists staged articles, then pending failures, and publishes an
// event per persisted article.
func (o *Orchestrator) flush(ctx context.Context, sess *runSession) error {
	if len(sess.staged) > 0 {
		batch := sess.staged
		if err := sess.st.AppendArticles(batch); err != nil {
			return err
		}
		sess.staged = nil
		sess.summary.Extracted += len(batch)
		sess.log.InfoObj("article batch persisted", "batch_persisted", map[string]any{
			"articles": len(batch),
			"total":    sess.summary.Extracted,
		})
		now := o.opts.Now()
		for _, a := range batch {
			o.publish(ctx, sess.log, publishers.ArticleEvent(sess.summary.RunID, sess.summary.ProviderID, a, now))
		}
	}
	return o.flushFailures(sess)
}

func (o *Orchestrator) flushFailures(sess *runSession) error {
	if len(sess.pending) == 0 {
		return nil
	}
	if err := sess.st.AppendFailures(sess.pending); err != nil {
		return err
	}
	sess.pending = nil
	return nil
}

// publish delivers evt when a publisher is configured. Delivery failures are
// logged and never fail the run; a canceled run still reports its summary.
func (o *Orchestrator) publish(ctx context.Context, log logger.Logger, evt publishers.Event) {
	if o.opts.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := o.opts.Publisher.Publish(pctx, evt); err != nil {
		log.WarnObj("event publish failed", "publish_error", map[string]any{
			"event_type": evt.Type,
			"event_id":   evt.ID,
			"error":      err.Error(),
		})
	}
}
