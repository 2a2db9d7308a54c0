package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qepting91/social-scraper/internal/domain"
)

func writeFile(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadTargets(t *testing.T) {
	path := writeFile(t, "\ufeffsource,subject,limit,sort,window,min_score,language\n"+
		"forum,golang,10,top,week,5,\n"+
		"forum,x,10,,,,\n"+ // subreddit name too short
		"forum,rust,abc,,,,\n"+ // bad limit
		"forum,python,,sideways,,,\n"+ // bad sort
		"twitter,golang lang,,new,,,EN\n"+
		"\"broken,row\n")

	base := domain.CollectionRequest{Source: domain.SourceForum, Limit: 25, Shape: domain.ShapeFlat}
	got, err := LoadTargets(path, base)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, domain.SourceForum, got[0].Source)
	require.Equal(t, "golang", got[0].Subject)
	require.Equal(t, 10, got[0].Limit)
	require.Equal(t, domain.SortTop, got[0].Sort)
	require.Equal(t, domain.WindowWeek, got[0].Window)
	require.Equal(t, 5, got[0].Filters.MinScore)
	require.Equal(t, domain.ShapeFlat, got[0].Shape)

	require.Equal(t, domain.SourceMicroblog, got[1].Source)
	require.Equal(t, "golang lang", got[1].Subject)
	require.Equal(t, 25, got[1].Limit, "limit falls back to base")
	require.Equal(t, domain.SortNewest, got[1].Sort)
	require.Equal(t, "EN", got[1].Filters.Language)
}

func TestLoadTargets_LegacyLayout(t *testing.T) {
	path := writeFile(t, "subreddit,min_score\nnetsec,50\nbad name,1\nmalware,\n")

	got, err := LoadTargets(path, domain.CollectionRequest{Limit: 25})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "netsec", got[0].Subject)
	require.Equal(t, 50, got[0].Filters.MinScore)
	require.Equal(t, "malware", got[1].Subject)
	require.Zero(t, got[1].Filters.MinScore)
}

func TestLoadTargets_TimelineNeedsHandle(t *testing.T) {
	path := writeFile(t, "source,subject\nmicroblog,@golang\nmicroblog,not a handle\n")

	got, err := LoadTargets(path, domain.CollectionRequest{Limit: 5, Timeline: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "@golang", got[0].Subject)
}

func TestLoadTargets_MissingFile(t *testing.T) {
	_, err := LoadTargets(filepath.Join(t.TempDir(), "nope.csv"), domain.CollectionRequest{})
	require.Error(t, err)
}

func TestLoadKeywords(t *testing.T) {
	path := writeFile(t, "\ufeffkeyword\nZero-Day\n  ransomware \n\nCVE\n")

	kws, err := LoadKeywords(path)
	require.NoError(t, err)
	require.Equal(t, []string{"zero-day", "ransomware", "cve"}, kws)
}

func TestMatchKeywords(t *testing.T) {
	kws := []string{"zero-day", "cve", "ransomware"}
	require.Equal(t, []string{"zero-day", "cve"}, MatchKeywords("New Zero-Day found, CVE pending", kws))
	require.Empty(t, MatchKeywords("nothing here", kws))
}
