// Package pipeline runs collection requests end to end: fetch, filter, project,
// extract reply trees and shape the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/filter"
	"github.com/qepting91/social-scraper/internal/logctx"
	"github.com/qepting91/social-scraper/internal/metrics"
	"github.com/qepting91/social-scraper/internal/projector"
	"github.com/qepting91/social-scraper/internal/retry"
	"github.com/qepting91/social-scraper/internal/shaper"
	"github.com/qepting91/social-scraper/internal/tree"
)

const (
	DefaultWorkers     = 4
	DefaultTreeTimeout = 60 * time.Second
)

// Pipeline owns one adapter and the settings for runs against it.
type Pipeline struct {
	Adapter domain.Adapter
	// Retry is the budget for every upstream call. Nil uses the retry defaults.
	Retry *retry.Retrier
	// Workers bounds concurrent reply tree fetches.
	Workers int
	// TreeTimeout bounds a single item's reply tree fetch.
	TreeTimeout time.Duration
	Expand      domain.ExpandOptions
	Metrics     *metrics.Collector
	Logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// New returns a pipeline over a with default concurrency settings.
func New(a domain.Adapter, r *retry.Retrier, m *metrics.Collector, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		Adapter:     a,
		Retry:       r,
		Workers:     DefaultWorkers,
		TreeTimeout: DefaultTreeTimeout,
		Metrics:     m,
		Logger:      logger,
	}
}

// Collect runs req. Configuration errors are returned before any upstream call.
// A nil error with no items means nothing matched.
func (p *Pipeline) Collect(ctx context.Context, req domain.CollectionRequest) (*shaper.Result, error) {
	const op = "pipeline/Collect"

	req, err := p.normalize(req)
	if err != nil {
		return nil, domain.Errorf(domain.KindInvalidConfiguration, op, req.Subject, err)
	}

	lg := p.logger(ctx).With(
		slog.String("op", op),
		slog.String("source", string(req.Source)),
		slog.String("subject", req.Subject),
	)
	ctx = logctx.Into(ctx, lg)
	src := string(req.Source)

	q := domain.PageQuery{
		Subject:        req.Subject,
		Sort:           req.Sort,
		Window:         req.Window,
		Query:          req.Query,
		Limit:          req.Limit,
		Timeline:       req.Timeline,
		IncludeReplies: req.IncludeReplies,
		ExcludeReposts: req.ExcludeReposts,
		Language:       req.Filters.Language,
		Since:          req.Since,
		Until:          req.Until,
	}
	if !req.Sort.UsesWindow() {
		q.Window = ""
	}

	fetched, err := retry.Value(p.retrier(lg, src), func() ([]domain.ContentItem, error) {
		return p.Adapter.FetchPage(ctx, q)
	})
	if err != nil {
		lg.Error("fetch failed", slog.String("err", err.Error()))
		return nil, wrap(op, req.Subject, err)
	}
	if len(fetched) > req.Limit {
		fetched = fetched[:req.Limit]
	}
	p.Metrics.ObserveFetched(src, len(fetched))

	kept := filter.Apply(fetched, req.Filters)
	p.Metrics.ObserveKept(src, len(kept))

	schema := projector.ForSource(req.Source)
	columns := schema.Columns(req.Fields)
	records := make([]projector.Record, len(kept))
	for i, it := range kept {
		records[i] = schema.Project(it, columns)
	}

	var forests []tree.Forest
	if req.Shape.WithComments() {
		forests, err = p.trees(ctx, req, schema, kept)
		if err != nil {
			return nil, wrap(op, req.Subject, err)
		}
	}

	res, err := shaper.Build(p.meta(req, schema), columns, records, forests)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, r := range []tree.Reason{tree.ReasonDepth, tree.ReasonError, tree.ReasonCollapsed} {
		if n := res.PrunedBy(r); n > 0 {
			p.Metrics.ObservePruned(src, string(r), n)
		}
	}

	lg.Info("collection finished",
		slog.String("run_id", res.RunID),
		slog.Int("fetched", len(fetched)),
		slog.Int("kept", len(kept)),
		slog.Int("comments", len(res.Comments)),
		slog.Int("pruned", len(res.Pruned)),
	)
	return res, nil
}

// Detail reads one item by id or URL together with its full reply tree.
func (p *Pipeline) Detail(ctx context.Context, id string, maxDepth int) (*shaper.Result, error) {
	const op = "pipeline/Detail"

	if id == "" {
		return nil, domain.Errorf(domain.KindInvalidConfiguration, op, id, errors.New("item id is required"))
	}
	if maxDepth < 0 {
		return nil, domain.Errorf(domain.KindInvalidConfiguration, op, id, fmt.Errorf("max depth %d is negative", maxDepth))
	}
	fetcher, ok := p.Adapter.(domain.ItemFetcher)
	if !ok {
		return nil, domain.Errorf(domain.KindInvalidConfiguration, op, id, fmt.Errorf("%s adapter cannot read single items", p.Adapter.Source()))
	}

	src := p.Adapter.Source()
	lg := p.logger(ctx).With(slog.String("op", op), slog.String("source", string(src)), slog.String("subject", id))
	ctx = logctx.Into(ctx, lg)

	it, err := retry.Value(p.retrier(lg, string(src)), func() (domain.ContentItem, error) {
		return fetcher.FetchItem(ctx, id)
	})
	if err != nil {
		lg.Error("fetch failed", slog.String("err", err.Error()))
		return nil, wrap(op, id, err)
	}
	p.Metrics.ObserveFetched(string(src), 1)

	req := domain.CollectionRequest{Source: src, Subject: id, Limit: 1, Shape: domain.ShapeNested, MaxDepth: maxDepth}
	schema := projector.ForSource(src)
	columns := schema.Columns(nil)

	forests, err := p.trees(ctx, req, schema, []domain.ContentItem{it})
	if err != nil {
		return nil, wrap(op, id, err)
	}
	return shaper.Build(p.meta(req, schema), columns, []projector.Record{schema.Project(it, columns)}, forests)
}

// trees extracts the reply tree of every item with at most Workers fetches in
// flight. Results keep the order of items.
func (p *Pipeline) trees(ctx context.Context, req domain.CollectionRequest, schema *projector.Schema, items []domain.ContentItem) ([]tree.Forest, error) {
	lg := logctx.From(ctx)

	fetcher, ok := p.Adapter.(domain.ReplyFetcher)
	if !ok {
		return nil, fmt.Errorf("%w: %s adapter cannot read replies", domain.ErrInvalidConfiguration, req.Source)
	}

	ex := &tree.Extractor{
		Fetcher:  fetcher,
		MaxDepth: req.MaxDepth,
		Expand:   p.Expand,
		Retry:    p.retrier(lg, string(req.Source)),
		BaseURL:  schema.BaseURL,
		Logger:   lg,
	}

	forests := make([]tree.Forest, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, it := range items {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, p.treeTimeout())
			defer cancel()
			forests[i] = ex.Extract(tctx, it.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return forests, nil
}

// normalize fills defaults and rejects requests that cannot be run.
func (p *Pipeline) normalize(req domain.CollectionRequest) (domain.CollectionRequest, error) {
	if p.Adapter == nil {
		return req, errors.New("no adapter configured")
	}
	if req.Source == "" {
		req.Source = p.Adapter.Source()
	}
	if req.Source != p.Adapter.Source() {
		return req, fmt.Errorf("request for %s sent to %s adapter", req.Source, p.Adapter.Source())
	}
	if req.Subject == "" && req.Query == "" {
		return req, errors.New("subject or query is required")
	}
	if req.Limit <= 0 {
		return req, fmt.Errorf("limit must be > 0, got %d", req.Limit)
	}
	if req.MaxDepth < 0 {
		return req, fmt.Errorf("max depth must be >= 0, got %d", req.MaxDepth)
	}

	var err error
	if req.Sort == "" {
		req.Sort = domain.SortNewest
	}
	if req.Sort, err = domain.ParseSort(string(req.Sort)); err != nil {
		return req, err
	}
	if !p.Adapter.SupportsSort(req.Sort) {
		return req, fmt.Errorf("%w: %s does not support %q", domain.ErrInvalidSort, req.Source, req.Sort)
	}
	if req.Window, err = domain.ParseTimeWindow(string(req.Window)); err != nil {
		return req, err
	}
	if req.Shape, err = domain.ParseShape(string(req.Shape)); err != nil {
		return req, err
	}
	if _, ok := p.Adapter.(domain.ReplyFetcher); req.Shape.WithComments() && !ok {
		return req, fmt.Errorf("%s adapter cannot read replies for the %s shape", req.Source, req.Shape)
	}
	if !req.Since.IsZero() && !req.Until.IsZero() && req.Until.Before(req.Since) {
		return req, fmt.Errorf("until %s is before since %s", req.Until.Format(time.DateOnly), req.Since.Format(time.DateOnly))
	}
	if req.Subject == "" {
		// Forum searches without a community run across all of them.
		req.Subject = req.Query
		if req.Source == domain.SourceForum {
			req.Subject = "all"
		}
	}
	return req, nil
}

func (p *Pipeline) meta(req domain.CollectionRequest, schema *projector.Schema) shaper.Meta {
	now, newID := time.Now, uuid.NewString
	if p.now != nil {
		now = p.now
	}
	if p.newID != nil {
		newID = p.newID
	}
	return shaper.Meta{
		RunID:       newID(),
		Source:      req.Source,
		Subject:     req.Subject,
		Schema:      schema.ID(),
		Shape:       req.Shape,
		CollectedAt: now().UTC(),
	}
}

// retrier copies the configured budget and counts retries for src.
func (p *Pipeline) retrier(lg *slog.Logger, src string) *retry.Retrier {
	var r retry.Retrier
	if p.Retry != nil {
		r = *p.Retry
	}
	r.Logger = lg
	next := r.OnRetry
	r.OnRetry = func(attempt int, err error) {
		p.Metrics.ObserveRetry(src)
		if next != nil {
			next(attempt, err)
		}
	}
	return &r
}

func (p *Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return DefaultWorkers
}

func (p *Pipeline) treeTimeout() time.Duration {
	if p.TreeTimeout > 0 {
		return p.TreeTimeout
	}
	return DefaultTreeTimeout
}

func (p *Pipeline) logger(ctx context.Context) *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logctx.From(ctx)
}

// wrap keeps typed errors and context errors as they are and tags the rest
// as upstream failures.
func wrap(op, subject string, err error) error {
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return domain.Errorf(domain.KindInvalidConfiguration, op, subject, err)
	}
	return domain.Errorf(domain.KindUpstreamUnavailable, op, subject, err)
}
