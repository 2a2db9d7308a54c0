package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/shaper"
	"github.com/qepting91/social-scraper/internal/storage"
)

const dateLayout = "2006-01-02"

// requestFlags are the collection options shared by collect and batch.
type requestFlags struct {
	source         string
	limit          int
	sort           string
	window         string
	query          string
	minScore       int
	minSecondary   int
	excludeFlagged bool
	language       string
	fields         string
	shape          string
	maxDepth       int
	timeline       bool
	includeReplies bool
	excludeReposts bool
	since          string
	until          string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.source, "source", "forum", "upstream: forum (reddit) or microblog (twitter)")
	fs.IntVarP(&f.limit, "limit", "n", 25, "maximum number of items to fetch")
	fs.StringVar(&f.sort, "sort", "newest", "newest, hottest, top, rising or controversial")
	fs.StringVar(&f.window, "window", "all", "time window for top/controversial: all, day, week, month, year")
	fs.StringVarP(&f.query, "query", "q", "", "search query; without one the subject's listing is read")
	fs.IntVar(&f.minScore, "min-score", 0, "drop items scoring below this")
	fs.IntVar(&f.minSecondary, "min-secondary", 0, "drop items with fewer comments/retweets than this")
	fs.BoolVar(&f.excludeFlagged, "exclude-flagged", false, "drop NSFW/flagged items")
	fs.StringVar(&f.language, "lang", "", "keep only items in this language")
	fs.StringVar(&f.fields, "fields", "", "comma separated output fields (default set when empty)")
	fs.StringVar(&f.shape, "shape", "flat", "output shape: flat, nested or split")
	fs.IntVar(&f.maxDepth, "max-depth", 0, "reply depth limit, 0 keeps top-level replies only")
	fs.BoolVar(&f.timeline, "timeline", false, "microblog: read the subject's timeline instead of searching")
	fs.BoolVar(&f.includeReplies, "include-replies", false, "microblog: keep replies in search results")
	fs.BoolVar(&f.excludeReposts, "exclude-reposts", false, "microblog: drop retweets")
	fs.StringVar(&f.since, "since", "", "microblog: earliest date, "+dateLayout)
	fs.StringVar(&f.until, "until", "", "microblog: latest date, "+dateLayout)
}

// request turns the flags into a request for subject. Enum values are parsed
// here so typos fail before any adapter is built.
func (f *requestFlags) request(subject string) (domain.CollectionRequest, error) {
	const op = "cmd/request"

	src, err := domain.ParseSource(f.source)
	if err != nil {
		return domain.CollectionRequest{}, fmt.Errorf("%s: %w", op, err)
	}
	sortBy, err := domain.ParseSort(f.sort)
	if err != nil {
		return domain.CollectionRequest{}, fmt.Errorf("%s: %w", op, err)
	}
	window, err := domain.ParseTimeWindow(f.window)
	if err != nil {
		return domain.CollectionRequest{}, fmt.Errorf("%s: %w", op, err)
	}
	shape, err := domain.ParseShape(f.shape)
	if err != nil {
		return domain.CollectionRequest{}, fmt.Errorf("%s: %w", op, err)
	}
	since, err := parseDate(f.since)
	if err != nil {
		return domain.CollectionRequest{}, fmt.Errorf("%s: since: %w", op, err)
	}
	until, err := parseDate(f.until)
	if err != nil {
		return domain.CollectionRequest{}, fmt.Errorf("%s: until: %w", op, err)
	}

	return domain.CollectionRequest{
		Source:  src,
		Subject: subject,
		Limit:   f.limit,
		Sort:    sortBy,
		Window:  window,
		Query:   f.query,
		Filters: domain.Filters{
			MinScore:       f.minScore,
			MinSecondary:   f.minSecondary,
			ExcludeFlagged: f.excludeFlagged,
			Language:       f.language,
		},
		Fields:         splitFields(f.fields),
		Shape:          shape,
		MaxDepth:       f.maxDepth,
		Timeline:       f.timeline,
		IncludeReplies: f.includeReplies,
		ExcludeReposts: f.excludeReposts,
		Since:          since,
		Until:          until,
	}, nil
}

var (
	collectFlags requestFlags
	collectOut   string
)

var collectCmd = &cobra.Command{
	Use:   "collect [subject]",
	Short: "Collect items from one subreddit, handle or search",
	Long: `Collect fetches up to --limit items, filters and projects them and,
for the nested and split shapes, extracts each item's reply tree.

The output format follows the --out extension: .csv, .json, .ndjson/.jsonl
or .db/.sqlite. Without --out the JSON document is written to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCollect,
}

var (
	detailSource string
	detailDepth  int
	detailOut    string
)

var detailCmd = &cobra.Command{
	Use:   "detail <id-or-url>",
	Short: "Fetch one item and its full reply tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetail,
}

func init() {
	collectFlags.register(collectCmd)
	collectCmd.Flags().StringVarP(&collectOut, "out", "o", "", "output file")

	detailCmd.Flags().StringVar(&detailSource, "source", "forum", "upstream: forum or microblog")
	detailCmd.Flags().IntVar(&detailDepth, "max-depth", 8, "reply depth limit")
	detailCmd.Flags().StringVarP(&detailOut, "out", "o", "", "output file (stdout when empty)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	var subject string
	if len(args) == 1 {
		subject = args[0]
	}
	req, err := collectFlags.request(subject)
	if err != nil {
		return err
	}

	p, err := state.newPipeline(req.Source)
	if err != nil {
		return err
	}
	res, err := p.Collect(cmd.Context(), req)
	if err != nil {
		return err
	}
	return write(cmd.Context(), cmd.OutOrStdout(), res, collectOut)
}

func runDetail(cmd *cobra.Command, args []string) error {
	src, err := domain.ParseSource(detailSource)
	if err != nil {
		return err
	}
	p, err := state.newPipeline(src)
	if err != nil {
		return err
	}
	res, err := p.Detail(cmd.Context(), args[0], detailDepth)
	if err != nil {
		return err
	}
	return write(cmd.Context(), cmd.OutOrStdout(), res, detailOut)
}

// write emits res to dest, or as an indented document on stdout.
func write(ctx context.Context, stdout io.Writer, res *shaper.Result, dest string) error {
	if dest == "" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Document())
	}
	sink, err := storage.ForPath(dest)
	if err != nil {
		return err
	}
	if err := shaper.Emit(ctx, sink, res, dest); err != nil {
		return err
	}
	state.logger.Info("output_written", "path", dest, "items", len(res.Items), "comments", len(res.Comments))
	return nil
}

func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not %s", domain.ErrInvalidConfiguration, s, dateLayout)
	}
	return t, nil
}
