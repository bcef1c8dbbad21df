package memrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/devassist/repo"
)

func seeded() *Repository {
	return New(map[string]string{
		"README.md":            "# ethos",
		"apps/ethos/page.tsx":  "export default function Page() { useState() }",
		"apps/ethos/lib/db.ts": "export const db = 1",
	})
}

func TestListDirectoriesAndFiles(t *testing.T) {
	r := seeded()
	ctx := context.Background()

	root, err := r.List(ctx, "/")
	require.NoError(t, err)
	require.Len(t, root, 2)
	assert.Equal(t, repo.Entry{Name: "README.md", Path: "README.md", Type: repo.EntryFile, SHA: root[0].SHA, Size: 7}, root[0])
	assert.Equal(t, repo.EntryDir, root[1].Type)
	assert.Equal(t, "apps", root[1].Name)

	sub, err := r.List(ctx, "apps/ethos")
	require.NoError(t, err)
	require.Len(t, sub, 2)
	assert.Equal(t, "lib", sub[0].Name)
	assert.Equal(t, "apps/ethos/lib", sub[0].Path)

	_, err = r.List(ctx, "README.md")
	assert.ErrorIs(t, err, repo.ErrNotADirectory)

	_, err = r.List(ctx, "nope")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStatTriState(t *testing.T) {
	r := seeded()
	ctx := context.Background()

	st, err := r.Stat(ctx, "README.md")
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.Equal(t, blobSHA([]byte("# ethos")), st.SHA)

	st, err = r.Stat(ctx, "apps")
	require.NoError(t, err)
	assert.Equal(t, repo.EntryDir, st.Type)

	st, err = r.Stat(ctx, "new.md")
	require.NoError(t, err)
	assert.False(t, st.Exists)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Stat(cctx, "README.md")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteFileVersionTokens(t *testing.T) {
	r := seeded()
	ctx := context.Background()

	res, err := r.WriteFile(ctx, repo.WriteRequest{Path: "docs/a.md", Content: []byte("a"), Message: "add"})
	require.NoError(t, err)
	assert.True(t, res.Created)

	_, err = r.WriteFile(ctx, repo.WriteRequest{Path: "docs/a.md", Content: []byte("b"), Message: "blind"})
	assert.ErrorIs(t, err, repo.ErrConflict, "update without token")

	_, err = r.WriteFile(ctx, repo.WriteRequest{Path: "docs/a.md", Content: []byte("b"), Message: "stale", SHA: "deadbeef"})
	assert.ErrorIs(t, err, repo.ErrConflict)

	_, err = r.WriteFile(ctx, repo.WriteRequest{Path: "docs/missing.md", Content: []byte("b"), Message: "ghost", SHA: "deadbeef"})
	assert.ErrorIs(t, err, repo.ErrConflict)

	res, err = r.WriteFile(ctx, repo.WriteRequest{Path: "docs/a.md", Content: []byte("b"), Message: "update", SHA: blobSHA([]byte("a"))})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, res.CommitSHA, r.HeadSHA())

	content, ok := r.Content("docs/a.md")
	assert.True(t, ok)
	assert.Equal(t, "b", content)
}

func TestWriteFileBeforeWriteRace(t *testing.T) {
	r := New(map[string]string{"a.txt": "v1"}, func(o *Options) {
		o.BeforeWrite = func(other *Repository, _ repo.WriteRequest) {
			other.Put("a.txt", "v2 from someone else")
		}
	})

	st, err := r.Stat(context.Background(), "a.txt")
	require.NoError(t, err)

	_, err = r.WriteFile(context.Background(), repo.WriteRequest{Path: "a.txt", Content: []byte("mine"), SHA: st.SHA})
	assert.ErrorIs(t, err, repo.ErrConflict)

	content, _ := r.Content("a.txt")
	assert.Equal(t, "v2 from someone else", content)
}

func TestSearchAndHistory(t *testing.T) {
	r := seeded()
	ctx := context.Background()

	res, err := r.SearchCode(ctx, repo.SearchQuery{Query: "usestate", Extension: "tsx"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)
	assert.Equal(t, "apps/ethos/page.tsx", res.Items[0].Path)

	res, err = r.SearchCode(ctx, repo.SearchQuery{Query: "export", Path: "apps/ethos/lib"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)

	_, err = r.WriteFile(ctx, repo.WriteRequest{Path: "README.md", Content: []byte("x"), Message: "docs: readme", SHA: blobSHA([]byte("# ethos"))})
	require.NoError(t, err)
	_, err = r.TriggerDeploy(ctx, "Trigger deploy")
	require.NoError(t, err)

	all, err := r.ListCommits(ctx, repo.CommitQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Trigger deploy", all[0].Message)

	hist, err := r.ListCommits(ctx, repo.CommitQuery{Path: "README.md"})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "docs: readme", hist[0].Message)
	assert.Equal(t, "Initial commit", hist[1].Message)
}

func TestBranchesAndPullRequests(t *testing.T) {
	r := seeded()
	ctx := context.Background()

	require.NoError(t, r.CreateBranch(ctx, "feature/x"))
	assert.Error(t, r.CreateBranch(ctx, "feature/x"))
	assert.Equal(t, []string{"feature/x", "main"}, r.Branches())

	_, err := r.CreatePullRequest(ctx, repo.PullRequestInput{Title: "t", Head: "unknown"})
	assert.Error(t, err)

	pr, err := r.CreatePullRequest(ctx, repo.PullRequestInput{Title: "t", Head: "feature/x"})
	require.NoError(t, err)
	assert.Equal(t, 1, pr.Number)
	assert.Len(t, r.PullRequests(), 1)
}
