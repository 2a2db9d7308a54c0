package shaper

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/projector"
	"github.com/qepting91/social-scraper/internal/tree"
)

func records(ids ...string) []projector.Record {
	var out []projector.Record
	for _, id := range ids {
		out = append(out, projector.Record{ID: id, Columns: []string{"id"}, Values: []any{id}})
	}
	return out
}

func forestWithThree(itemID string) tree.Forest {
	return tree.Forest{ItemID: itemID, Nodes: []domain.CommentNode{
		{ID: "c1", Depth: 0, Children: []domain.CommentNode{{ID: "c2", ParentID: "c1", Depth: 1}}},
		{ID: "c3", Depth: 0},
	}}
}

func TestBuild_SplitTagsEveryCommentWithItsOwner(t *testing.T) {
	t.Parallel()

	forests := []tree.Forest{forestWithThree("p1"), {ItemID: "p2"}}
	res, err := Build(Meta{Shape: domain.ShapeSplit}, []string{"id"}, records("p1", "p2"), forests)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	require.Len(t, res.Comments, 3)
	for _, c := range res.Comments {
		require.Equal(t, "p1", c.ItemID)
		require.Nil(t, c.Children)
	}
	require.Equal(t, []string{"c1", "c2", "c3"}, []string{res.Comments[0].ID, res.Comments[1].ID, res.Comments[2].ID})
	require.Empty(t, res.CommentsFor("p2"))
	require.Nil(t, res.Items[0].Comments)
	require.Equal(t, tree.StatusOK, res.Items[0].TreeStatus)
	require.Equal(t, tree.StatusEmpty, res.Items[1].TreeStatus)
}

func TestBuild_NestedEmbedsForest(t *testing.T) {
	t.Parallel()

	failed := tree.Forest{ItemID: "p2", Err: errors.New("boom")}
	res, err := Build(Meta{Shape: domain.ShapeNested}, []string{"id"}, records("p1", "p2"), []tree.Forest{forestWithThree("p1"), failed})
	require.NoError(t, err)

	require.Empty(t, res.Comments)
	require.Len(t, res.Items[0].Comments, 2)
	require.Len(t, res.Items[0].Comments[0].Children, 1)
	require.Equal(t, tree.StatusFailed, res.Items[1].TreeStatus)
	require.Equal(t, "boom", res.Items[1].TreeError)
}

func TestBuild_NestedEmptyThreadKeepsComments(t *testing.T) {
	t.Parallel()

	quiet := tree.Forest{ItemID: "p1"}
	failed := tree.Forest{ItemID: "p2", Err: errors.New("boom")}
	res, err := Build(Meta{Shape: domain.ShapeNested}, []string{"id"}, records("p1", "p2"), []tree.Forest{quiet, failed})
	require.NoError(t, err)

	var got []map[string]any
	for _, e := range res.Items {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		got = append(got, m)
	}

	require.Equal(t, []any{}, got[0]["comments"])
	require.Equal(t, tree.StatusEmpty, got[0]["tree_status"])
	require.NotContains(t, got[1], "comments")
	require.Equal(t, tree.StatusFailed, got[1]["tree_status"])
}

func TestBuild_FlatIgnoresForests(t *testing.T) {
	t.Parallel()

	res, err := Build(Meta{Shape: domain.ShapeFlat}, []string{"id"}, records("p1"), []tree.Forest{forestWithThree("p1")})
	require.NoError(t, err)
	require.Nil(t, res.Items[0].Comments)
	require.Empty(t, res.Items[0].TreeStatus)
	require.Empty(t, res.Comments)
}

func TestBuild_MismatchedForests(t *testing.T) {
	t.Parallel()

	_, err := Build(Meta{Shape: domain.ShapeNested}, nil, records("a", "b"), []tree.Forest{{}})
	require.Error(t, err)
}

func TestBuild_CollectsPruned(t *testing.T) {
	t.Parallel()

	f := tree.Forest{ItemID: "p", Pruned: []tree.Pruned{
		{ItemID: "p", NodeID: "x", Reason: tree.ReasonDepth},
		{ItemID: "p", NodeID: "y", Reason: tree.ReasonError},
	}}
	res, err := Build(Meta{Shape: domain.ShapeNested}, nil, records("p"), []tree.Forest{f})
	require.NoError(t, err)
	require.Equal(t, 1, res.PrunedBy(tree.ReasonDepth))
	require.Equal(t, 1, res.PrunedBy(tree.ReasonError))
}

func TestEntry_MarshalJSON(t *testing.T) {
	t.Parallel()

	flat := Entry{Record: projector.Record{ID: "1", Columns: []string{"id", "score"}, Values: []any{"1", 4}}}
	b, err := json.Marshal(flat)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1","score":4}`, string(b))

	nested := flat
	nested.Comments = []domain.CommentNode{{ID: "c", Author: "a", Depth: 0}}
	nested.TreeStatus = tree.StatusOK
	b, err = json.Marshal(nested)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1","score":4,"comments":[{"id":"c","author":"a","body":"","score":0,"created_at":0,"depth":0}],"tree_status":"ok"}`, string(b))
}

type recordingSink struct {
	dest string
	res  *Result
}

func (r *recordingSink) Write(_ context.Context, res *Result, dest string) error {
	r.res, r.dest = res, dest
	return nil
}

func TestEmit(t *testing.T) {
	t.Parallel()

	res := &Result{}
	sink := &recordingSink{}
	require.NoError(t, Emit(context.Background(), sink, res, "out/x.csv"))
	require.Same(t, res, sink.res)
	require.Equal(t, "out/x.csv", sink.dest)

	require.NoError(t, Emit(context.Background(), nil, res, "x"))
}

func TestCommentRow_Strings(t *testing.T) {
	t.Parallel()

	row := CommentRow{ItemID: "p", CommentNode: domain.CommentNode{ID: "c", Author: "a", Score: 2, Depth: 1, CreatedAt: 10}}
	require.Equal(t, []string{"p", "c", "", "a", "", "2", "10", "", "", "1"}, row.Strings())
	require.Len(t, CommentColumns, len(row.Strings()))
}
