package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/storage"
)

// execute runs the root command in mock mode with every flag back at its default.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("COLLECTOR_MODE", "mock")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("LOG_LEVEL", "error")

	var reset func(*cobra.Command)
	reset = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCollect_SplitCSV(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out", "golang.csv")

	_, err := execute(t, "collect", "golang", "-n", "3", "--shape", "split", "--max-depth", "1", "--out", dest)
	require.NoError(t, err)

	items, err := storage.ReadCSV(dest)
	require.NoError(t, err)
	require.Equal(t, []string{"mock_golang_0", "mock_golang_1", "mock_golang_2"}, items.Column("id"))

	comments, err := storage.ReadCSV(storage.CommentsPath(dest))
	require.NoError(t, err)
	// Two top-level replies per item, each keeping one child at depth 1.
	require.Len(t, comments.Rows, 12)
}

func TestCollect_StdoutDocument(t *testing.T) {
	out, err := execute(t, "collect", "golang", "-n", "2", "--fields", "id,score")
	require.NoError(t, err)

	var doc storage.StoredDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Equal(t, "golang", doc.Subject)
	require.Equal(t, []string{"id", "score"}, doc.Columns)
	require.Len(t, doc.Items, 2)
}

func TestCollect_InvalidSort(t *testing.T) {
	_, err := execute(t, "collect", "golang", "--sort", "sideways")
	require.ErrorIs(t, err, domain.ErrInvalidSort)
	require.Equal(t, 2, exitCode(err))
}

func TestCollect_MicroblogRejectsHottest(t *testing.T) {
	_, err := execute(t, "collect", "golang", "--source", "microblog", "--sort", "hottest")
	require.ErrorIs(t, err, domain.ErrInvalidSort)
}

func TestDetail_WritesJSON(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "detail.json")

	_, err := execute(t, "detail", "abc123", "--max-depth", "2", "--out", dest)
	require.NoError(t, err)

	doc, err := storage.ReadDocument(dest)
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	require.Equal(t, "abc123", doc.Items[0]["id"])
	require.Equal(t, "ok", doc.Items[0]["tree_status"])
}

func TestBatch_KeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	targets := filepath.Join(dir, "targets.csv")
	rows := "source,subject,limit,sort\nforum,golang,2,\nforum,bad name,2,\nforum,rust,3,\nmicroblog,gophers,1,\nforum,golang,1,top\n"
	require.NoError(t, os.WriteFile(targets, []byte(rows), 0o600))
	summary := filepath.Join(dir, "summary.ndjson")

	_, err := execute(t, "batch", "--targets", targets, "--out-dir", filepath.Join(dir, "out"), "--summary", summary)
	require.NoError(t, err)

	for _, name := range []string{"00_forum_golang.csv", "01_forum_rust.csv", "02_microblog_gophers.csv", "03_forum_golang.csv"} {
		_, err := os.Stat(filepath.Join(dir, "out", name))
		require.NoError(t, err, name)
	}

	// The same subject under another sort keeps its own file.
	newest, err := storage.ReadCSV(filepath.Join(dir, "out", "00_forum_golang.csv"))
	require.NoError(t, err)
	require.Len(t, newest.Rows, 2)
	top, err := storage.ReadCSV(filepath.Join(dir, "out", "03_forum_golang.csv"))
	require.NoError(t, err)
	require.Len(t, top.Rows, 1)

	raw, err := os.ReadFile(summary)
	require.NoError(t, err)
	var got []string
	for _, line := range bytes.Split(bytes.TrimSpace(raw), []byte("\n")) {
		var s summaryLine
		require.NoError(t, json.Unmarshal(line, &s))
		got = append(got, fmt.Sprintf("%d:%s:%d", s.Index, s.Subject, s.Items))
	}
	require.Equal(t, []string{"0:golang:2", "1:rust:3", "2:gophers:1", "3:golang:1"}, got)
}

func TestBatch_NoValidTargets(t *testing.T) {
	targets := filepath.Join(t.TempDir(), "targets.csv")
	require.NoError(t, os.WriteFile(targets, []byte("subreddit\n!!\n"), 0o600))

	_, err := execute(t, "batch", "--targets", targets, "--summary", "")
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{context.Canceled, 130},
		{domain.Errorf(domain.KindInvalidConfiguration, "op", "s", errors.New("x")), 2},
		{domain.Errorf(domain.KindSubjectNotFound, "op", "s", errors.New("x")), 3},
		{domain.Errorf(domain.KindUpstreamUnavailable, "op", "s", errors.New("x")), 4},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}

func TestOutputName(t *testing.T) {
	golang := domain.CollectionRequest{Source: domain.SourceForum, Subject: "golang"}
	require.Equal(t, "00_forum_golang.csv", outputName(0, golang, "csv"))
	require.Equal(t, "12_microblog_go_lang.json", outputName(12, domain.CollectionRequest{Source: domain.SourceMicroblog, Query: "go lang"}, "json"))

	golang.Sort = domain.SortTop
	require.NotEqual(t, outputName(0, golang, "csv"), outputName(1, golang, "csv"))
}

func TestSplitFields(t *testing.T) {
	require.Equal(t, []string{"id", "title"}, splitFields(" id, ,title "))
	require.Nil(t, splitFields(""))
}
