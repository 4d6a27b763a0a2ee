package lfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// fixtureRepo 基于 go-git 在临时目录里构造测试仓库
type fixtureRepo struct {
	t     *testing.T
	dir   string
	repo  *git.Repository
	wt    *git.Worktree
	clock time.Time
}

func newFixtureRepo(t *testing.T) *fixtureRepo {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	return &fixtureRepo{
		t:     t,
		dir:   dir,
		repo:  repo,
		wt:    wt,
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fixtureRepo) write(rel string, size int) {
	f.t.Helper()

	writeSizedFile(f.t, f.dir, rel, size)
	_, err := f.wt.Add(rel)
	require.NoError(f.t, err)
}

func (f *fixtureRepo) remove(rel string) {
	f.t.Helper()

	_, err := f.wt.Remove(rel)
	require.NoError(f.t, err)
	_, err = os.Stat(filepath.Join(f.dir, filepath.FromSlash(rel)))
	require.True(f.t, os.IsNotExist(err))
}

func (f *fixtureRepo) commit(msg string) plumbing.Hash {
	f.t.Helper()

	f.clock = f.clock.Add(time.Hour)
	hash, err := f.wt.Commit(msg, &git.CommitOptions{Author: f.signature()})
	require.NoError(f.t, err)
	return hash
}

func (f *fixtureRepo) signature() *object.Signature {
	return &object.Signature{Name: "Migrator Test", Email: "test@example.com", When: f.clock}
}

const kib = 1024

// newGhostFileRepo 5 个提交：第 3 个提交加入 120KB 的 old-asset.bin，第 4 个提交删除它
func newGhostFileRepo(t *testing.T) *fixtureRepo {
	f := newFixtureRepo(t)
	f.write("README.md", 200)
	f.commit("initial")
	f.write("src/main.go", 2*kib)
	f.commit("add source")
	f.write("old-asset.bin", 120*kib)
	f.commit("add asset")
	f.remove("old-asset.bin")
	f.commit("drop asset")
	f.write("docs/guide.md", 4*kib)
	f.commit("docs")
	return f
}
