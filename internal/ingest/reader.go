// Package ingest reads batch targets and keyword lists from CSV files.
package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/storage"
)

var (
	// Regex for valid subreddit names
	subNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,21}$`)
	handleRegex  = regexp.MustCompile(`^@?[A-Za-z0-9_]{1,15}$`)
)

// LoadTargets reads one collection request per row. Columns are matched by
// header name: source, subject, query, limit, sort, window, min_score,
// min_secondary, language. Missing cells take their value from base.
// Rows that fail validation are skipped.
func LoadTargets(path string, base domain.CollectionRequest) ([]domain.CollectionRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Wrap in BOM stripper
	r := csv.NewReader(storage.StripBOM(f))
	r.FieldsPerRecord = -1

	var (
		targets []domain.CollectionRequest
		cols    map[string]int
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		if cols == nil {
			cols = header(record)
			continue
		}

		// Validation (Fail-Soft)
		if req, ok := parseTarget(record, cols, base); ok {
			targets = append(targets, req)
		}
	}
	return targets, nil
}

func header(rec []string) map[string]int {
	cols := make(map[string]int, len(rec))
	for i, h := range rec {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	// Without a subject column the older subreddit,min_score layout is assumed.
	if _, ok := cols["subject"]; !ok {
		if i, ok := cols["subreddit"]; ok {
			cols["subject"] = i
		} else {
			cols["subject"] = 0
		}
	}
	return cols
}

func parseTarget(rec []string, cols map[string]int, base domain.CollectionRequest) (domain.CollectionRequest, bool) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	req := base
	if s := get("source"); s != "" {
		src, err := domain.ParseSource(s)
		if err != nil {
			return req, false
		}
		req.Source = src
	}

	req.Subject = get("subject")
	req.Query = get("query")
	if req.Query == "" {
		req.Query = base.Query
	}
	switch {
	case req.Subject == "" && req.Query == "":
		return req, false
	case req.Subject == "":
	case req.Source == domain.SourceMicroblog:
		// Searches take any subject; timelines need a valid handle.
		if req.Timeline && !handleRegex.MatchString(req.Subject) {
			return req, false
		}
	default:
		if !subNameRegex.MatchString(req.Subject) {
			return req, false
		}
	}

	if v := get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return req, false
		}
		req.Limit = n
	}
	if v := get("sort"); v != "" {
		s, err := domain.ParseSort(v)
		if err != nil {
			return req, false
		}
		req.Sort = s
	}
	if v := get("window"); v != "" {
		w, err := domain.ParseTimeWindow(v)
		if err != nil {
			return req, false
		}
		req.Window = w
	}
	if v := get("min_score"); v != "" {
		req.Filters.MinScore, _ = strconv.Atoi(v)
	}
	if v := get("min_secondary"); v != "" {
		req.Filters.MinSecondary, _ = strconv.Atoi(v)
	}
	if v := get("language"); v != "" {
		req.Filters.Language = v
	}
	return req, true
}

// LoadKeywords reads the first column of every row after the header, lowercased.
func LoadKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(storage.StripBOM(f))
	r.FieldsPerRecord = -1

	var kws []string
	line := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		if line > 0 && len(rec) > 0 {
			if kw := strings.ToLower(strings.TrimSpace(rec[0])); kw != "" {
				kws = append(kws, kw)
			}
		}
		line++
	}
	return kws, nil
}

// MatchKeywords returns the keywords found in text, case-insensitively.
func MatchKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			hits = append(hits, k)
		}
	}
	return hits
}
