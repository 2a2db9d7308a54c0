// Package storage writes collection results to files and databases.
package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/qepting91/social-scraper/internal/shaper"
)

// ForPath picks a sink from the destination's extension.
func ForPath(dest string) (shaper.Sink, error) {
	switch strings.ToLower(filepath.Ext(dest)) {
	case ".csv":
		return CSVSink{}, nil
	case ".json":
		return JSONSink{}, nil
	case ".ndjson", ".jsonl":
		return NDJSONSink{}, nil
	case ".db", ".sqlite", ".sqlite3":
		return SQLiteSink{}, nil
	}
	return nil, fmt.Errorf("storage: no sink for %q (use .csv, .json, .ndjson or .db)", dest)
}

// CommentsPath returns the sibling file that holds split-shape comments,
// e.g. out/posts.csv -> out/posts_comments.csv.
func CommentsPath(dest string) string {
	ext := filepath.Ext(dest)
	return strings.TrimSuffix(dest, ext) + "_comments" + ext
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// StripBOM drops a leading UTF-8 byte order mark, as spreadsheet exports often carry one.
func StripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		br.UnreadRune()
	}
	return br
}
