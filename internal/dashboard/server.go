// Package dashboard serves charts over a stored collection result.
package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qepting91/social-scraper/internal/ingest"
	"github.com/qepting91/social-scraper/internal/storage"
)

// Column names that carry the same meaning on each source schema.
var (
	scoreFields     = []string{"score", "like_count"}
	secondaryFields = []string{"secondary_count", "num_comments", "retweet_count"}
	textFields      = []string{"title", "body", "selftext", "content"}
	communityFields = []string{"subreddit", "user"}
)

// Server renders the data file on every request so a running collection
// shows up without a restart.
type Server struct {
	DataFile string
	Keywords []string

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New returns a dashboard over dataFile. A nil gatherer serves the default
// registry on /metrics.
func New(dataFile string, keywords []string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{DataFile: dataFile, Keywords: keywords, gatherer: gatherer, logger: logger}
}

// Handler routes / to the charts, /items to the raw rows and /metrics to
// the prometheus exposition.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/", s.charts)
	router.GET("/items", s.items)
	router.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return router
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard_listen_start", "addr", addr, "data", s.DataFile)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) charts(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	data, err := load(s.DataFile)
	if err != nil {
		s.logger.Warn("dashboard_load_failed", "path", s.DataFile, "err", err)
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderers := []func() error{
		func() error { return scoreBar(data).Render(w) },
		func() error { return secondaryBar(data).Render(w) },
		func() error { return communityPie(data).Render(w) },
	}
	if len(s.Keywords) > 0 {
		renderers = append(renderers, func() error { return keywordBar(data, s.Keywords).Render(w) })
	}
	for _, render := range renderers {
		if err := render(); err != nil {
			s.logger.Error("dashboard_render_failed", "err", err)
			return
		}
	}
}

func (s *Server) items(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	data, err := load(s.DataFile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data.rows)
}

type dataset struct {
	subject string
	rows    []map[string]any
}

// load reads a JSON document, or one row per line for NDJSON files.
func load(path string) (*dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		doc, err := storage.ReadDocument(path)
		if err != nil {
			return nil, err
		}
		return &dataset{subject: doc.Subject, rows: doc.Items}, nil
	case ".ndjson", ".jsonl":
		return loadLines(path)
	}
	return nil, fmt.Errorf("dashboard: unsupported data file %q", path)
}

func loadLines(path string) (*dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data := &dataset{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err == nil {
			data.rows = append(data.rows, row)
		}
	}
	return data, scanner.Err()
}

func scoreBar(data *dataset) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Score by Item"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	x, y := series(data, scoreFields)
	bar.SetXAxis(x).AddSeries("Score", y)
	return bar
}

func secondaryBar(data *dataset) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Engagement by Item"}))
	x, y := series(data, secondaryFields)
	bar.SetXAxis(x).AddSeries("Comments / Reposts", y)
	return bar
}

func communityPie(data *dataset) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Community Dominance"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)

	counts := make(map[string]int)
	for _, row := range data.rows {
		name, ok := text(row, communityFields)
		if !ok || name == "" {
			name = data.subject
		}
		counts[name]++
	}
	var items []opts.PieData
	for _, k := range sortedKeys(counts) {
		items = append(items, opts.PieData{Name: k, Value: counts[k]})
	}
	pie.AddSeries("Items", items)
	return pie
}

func keywordBar(data *dataset, keywords []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Keyword Velocity"}))

	counts := keywordCounts(data, keywords)
	var (
		x []string
		y []opts.BarData
	)
	for _, k := range keywords {
		x = append(x, k)
		y = append(y, opts.BarData{Value: counts[k]})
	}
	bar.SetXAxis(x).AddSeries("Mentions", y)
	return bar
}

// keywordCounts counts the rows mentioning each keyword in any text column.
func keywordCounts(data *dataset, keywords []string) map[string]int {
	counts := make(map[string]int, len(keywords))
	for _, row := range data.rows {
		var sb strings.Builder
		for _, f := range textFields {
			if s, ok := row[f].(string); ok {
				sb.WriteString(s)
				sb.WriteByte('\n')
			}
		}
		for _, k := range ingest.MatchKeywords(sb.String(), keywords) {
			counts[k]++
		}
	}
	return counts
}

// series pairs every row's id with the first numeric column found in fields.
func series(data *dataset, fields []string) ([]string, []opts.BarData) {
	var (
		x []string
		y []opts.BarData
	)
	for i, row := range data.rows {
		label, _ := row["id"].(string)
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		x = append(x, label)
		y = append(y, opts.BarData{Value: number(row, fields)})
	}
	return x, y
}

func number(row map[string]any, fields []string) float64 {
	for _, f := range fields {
		if v, ok := row[f].(float64); ok {
			return v
		}
	}
	return 0
}

func text(row map[string]any, fields []string) (string, bool) {
	for _, f := range fields {
		if v, ok := row[f].(string); ok {
			return v, true
		}
	}
	return "", false
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
