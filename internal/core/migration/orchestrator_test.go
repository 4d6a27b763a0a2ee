package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repo-migrator/internal/core/lfs"
	"repo-migrator/internal/model"
	"repo-migrator/internal/pkg/git/api"
	"repo-migrator/internal/repository"
	"repo-migrator/pkg/constants"
	pkgErrors "repo-migrator/pkg/errors"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeDestination struct {
	existing map[string]bool // name -> 是否有内容
	quota    map[string]int  // Create 前 n 次返回配额错误
	created  []string
	deleted  []string
	lfs      []string
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{existing: map[string]bool{}, quota: map[string]int{}}
}

func (d *fakeDestination) CloneURL(name string) string {
	return "https://dst.example.com/acme/" + name + ".git"
}

func (d *fakeDestination) Exists(ctx context.Context, name string) (bool, error) {
	_, ok := d.existing[name]
	return ok, nil
}

func (d *fakeDestination) IsEmpty(ctx context.Context, name string) (bool, error) {
	return !d.existing[name], nil
}

func (d *fakeDestination) Create(ctx context.Context, name string) error {
	if d.quota[name] > 0 {
		d.quota[name]--
		return &api.RateLimitError{Platform: api.PlatformGitLab, ResetAt: testNow.Add(90 * time.Second), Err: errors.New("429")}
	}
	d.created = append(d.created, name)
	d.existing[name] = false
	return nil
}

func (d *fakeDestination) EnableLargeObjectStorage(ctx context.Context, name string) error {
	d.lfs = append(d.lfs, name)
	return nil
}

func (d *fakeDestination) Delete(ctx context.Context, name string) error {
	d.deleted = append(d.deleted, name)
	delete(d.existing, name)
	return nil
}

type fakeSource struct{}

func (fakeSource) CloneURL(name string) string {
	return "https://src.example.com/acme/" + name + ".git"
}

type fakeExecutor struct {
	files    map[string]map[string]int // repo -> path -> size
	failPush map[string]error
	onClone  func(name string)

	cloned     []string
	rewrites   []string
	pushed     []string
	lfsPushed  []string
	lastBranch string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{files: map[string]map[string]int{}, failPush: map[string]error{}}
}

func (e *fakeExecutor) CloneSingleBranch(ctx context.Context, remoteURL, branch, destPath string) error {
	name := filepath.Base(destPath)
	e.cloned = append(e.cloned, name)
	e.lastBranch = branch
	if e.onClone != nil {
		e.onClone(name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(destPath, "README.md"), []byte("# "+name), 0o644); err != nil {
		return err
	}
	for p, size := range e.files[name] {
		full := filepath.Join(destPath, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, make([]byte, size), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (e *fakeExecutor) RewriteHistoryBySize(ctx context.Context, repoPath string, thresholdBytes int64) error {
	e.rewrites = append(e.rewrites, fmt.Sprintf("%s:size:%d", filepath.Base(repoPath), thresholdBytes))
	return nil
}

func (e *fakeExecutor) RewriteHistoryByFileList(ctx context.Context, repoPath string, paths []string) error {
	e.rewrites = append(e.rewrites, fmt.Sprintf("%s:files:%s", filepath.Base(repoPath), strings.Join(paths, ",")))
	return nil
}

func (e *fakeExecutor) Push(ctx context.Context, repoPath, remoteURL, branch string) error {
	name := filepath.Base(repoPath)
	if err := e.failPush[name]; err != nil {
		return err
	}
	e.pushed = append(e.pushed, name)
	return nil
}

func (e *fakeExecutor) PushLargeObjects(ctx context.Context, repoPath, remoteURL string) error {
	e.lfsPushed = append(e.lfsPushed, filepath.Base(repoPath))
	return nil
}

func (e *fakeExecutor) ListTrackedLargeObjects(ctx context.Context, repoPath string) ([]string, error) {
	var files []string
	for p := range e.files[filepath.Base(repoPath)] {
		files = append(files, p)
	}
	return files, nil
}

type harness struct {
	orch   *Orchestrator
	store  repository.StateStore
	dest   *fakeDestination
	exec   *fakeExecutor
	sleeps []time.Duration
	work   string
}

func newHarness(t *testing.T, options Options, table model.LFSConfigTable, records ...*model.RepoRecord) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()

	store := repository.NewStateStore(repository.NewFileBackend(filepath.Join(dir, "repositories.yaml"), ""))
	require.NoError(t, store.Save(records))

	settings, err := lfs.NewSettings("1KB", nil, 0)
	require.NoError(t, err)
	resolver, err := lfs.NewResolver(settings, logger)
	require.NoError(t, err)

	h := &harness{
		store: store,
		dest:  newFakeDestination(),
		exec:  newFakeExecutor(),
		work:  filepath.Join(dir, "work"),
	}
	options.WorkDir = h.work

	h.orch = NewOrchestrator(Dependencies{
		Store:       store,
		Source:      fakeSource{},
		Destination: h.dest,
		Executor:    h.exec,
		Detector:    resolver,
		Settings:    settings,
		ConfigTable: table,
	}, options, logger)
	h.orch.now = func() time.Time { return testNow }
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func (h *harness) record(t *testing.T, name string) *model.RepoRecord {
	t.Helper()
	r, err := h.store.Get(name)
	require.NoError(t, err)
	return r
}

func repos(names ...string) []*model.RepoRecord {
	records := make([]*model.RepoRecord, 0, len(names))
	for _, n := range names {
		records = append(records, &model.RepoRecord{Name: n, Branch: "main"})
	}
	return records
}

func requireWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRun_MigratesPendingInTableOrder(t *testing.T) {
	records := repos("small-repo", "with-config", "done", "ghost-file")
	records[2].Transferred = true

	table := model.LFSConfigTable{
		"with-config": {Rules: []model.LFSRule{model.ExplicitFiles{Paths: []string{"big.bin"}}}},
		"ghost-file":  {Rules: []model.LFSRule{model.ExplicitFiles{Paths: []string{"old-asset.bin"}}}},
	}
	h := newHarness(t, Options{}, table, records...)
	h.exec.files["with-config"] = map[string]int{"big.bin": 4096}

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.FileExists(t, report.Snapshot)
	require.Equal(t, 3, report.Pending)
	require.Equal(t, 3, report.Completed)
	require.Zero(t, report.Failed)

	require.Equal(t, []string{"small-repo", "with-config", "ghost-file"}, h.exec.cloned)
	require.Equal(t, []string{"small-repo", "with-config", "ghost-file"}, h.exec.pushed)
	require.Equal(t, []string{"with-config:files:big.bin", "ghost-file:size:1024"}, h.exec.rewrites)
	require.Equal(t, []string{"with-config", "ghost-file"}, h.dest.lfs)
	require.Equal(t, "main", h.exec.lastBranch)

	small := h.record(t, "small-repo")
	require.True(t, small.Transferred)
	require.False(t, small.HasLFS)
	require.Equal(t, constants.StrategyNone, small.LFSStrategy)
	require.True(t, small.CreatedAt.Equal(testNow))
	require.NotNil(t, small.PushedAt)

	withConfig := h.record(t, "with-config")
	require.True(t, withConfig.HasLFS)
	require.Equal(t, constants.StrategyFileList, withConfig.LFSStrategy)
	require.Equal(t, []string{"big.bin"}, []string(withConfig.LFSFiles))

	ghost := h.record(t, "ghost-file")
	require.Equal(t, constants.StrategySizeThreshold, ghost.LFSStrategy)

	requireWorkDirEmpty(t, h.work)
}

func TestRun_FileListRewriteUsesTrackingManifest(t *testing.T) {
	table := model.LFSConfigTable{
		"assets": {Rules: []model.LFSRule{
			model.ExplicitFiles{Paths: []string{"b.bin", "./media/a.bin"}},
			model.PatternBased{Patterns: []string{"*.psd"}},
		}},
	}
	h := newHarness(t, Options{}, table, repos("assets")...)
	h.exec.files["assets"] = map[string]int{"b.bin": 4096, "media/a.bin": 4096, "art/logo.psd": 10}

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"assets:files:art/logo.psd,b.bin,media/a.bin"}, h.exec.rewrites)
	record := h.record(t, "assets")
	require.Equal(t, constants.StrategyFileList, record.LFSStrategy)
	require.ElementsMatch(t, []string{"art/logo.psd", "b.bin", "media/a.bin"}, []string(record.LFSFiles))
}

func TestRun_FailureRollsBackOnlyNewlyCreatedDestination(t *testing.T) {
	h := newHarness(t, Options{}, nil, repos("fresh", "leftover")...)
	h.dest.existing["leftover"] = false // 上次尝试留下的空仓库
	pushErr := pkgErrors.Wrap(pkgErrors.CodeStrategyExecution, "推送失败", errors.New("remote hung up"))
	h.exec.failPush["fresh"] = pushErr
	h.exec.failPush["leftover"] = pushErr

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Failed)

	require.Equal(t, []string{"fresh"}, h.dest.deleted)
	_, kept := h.dest.existing["leftover"]
	require.True(t, kept)

	for _, name := range []string{"fresh", "leftover"} {
		r := h.record(t, name)
		require.False(t, r.Processing)
		require.False(t, r.Transferred)
		require.Equal(t, 1, r.RetryCount)
		require.Contains(t, *r.Error, "remote hung up")
	}
	requireWorkDirEmpty(t, h.work)
}

func TestRun_RetryCeiling(t *testing.T) {
	h := newHarness(t, Options{}, nil, repos("flaky")...)
	h.exec.failPush["flaky"] = errors.New("boom")

	for i := 0; i < constants.MaxRetryCount; i++ {
		_, err := h.orch.Run(context.Background())
		require.NoError(t, err)
	}
	r := h.record(t, "flaky")
	require.Equal(t, constants.RecordStateExhausted, r.State())

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Pending)
	require.Len(t, h.exec.cloned, constants.MaxRetryCount)

	require.NoError(t, h.store.ClearError("flaky"))
	delete(h.exec.failPush, "flaky")
	report, err = h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Completed)
}

func TestRun_QuotaPauseRetriesInFlightRepositoryOnce(t *testing.T) {
	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("repo-%02d", i+1)
	}
	h := newHarness(t, Options{}, nil, repos(names...)...)
	h.dest.quota["repo-07"] = 1

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.QuotaPauses)
	require.Equal(t, 10, report.Completed)

	require.Equal(t, []time.Duration{90 * time.Second}, h.sleeps)
	require.Equal(t, names, h.exec.cloned)

	r := h.record(t, "repo-07")
	require.True(t, r.Transferred)
	require.Zero(t, r.RetryCount)
}

func TestRun_QuotaAfterResumeMovesOn(t *testing.T) {
	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("repo-%02d", i+1)
	}
	h := newHarness(t, Options{}, nil, repos(names...)...)
	h.dest.quota["repo-07"] = 2

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.QuotaPauses)
	require.Equal(t, 9, report.Completed)
	require.Equal(t, 1, report.Failed)
	require.Len(t, h.sleeps, 1)

	r := h.record(t, "repo-07")
	require.False(t, r.Transferred)
	require.False(t, r.Processing)
	require.Zero(t, r.RetryCount)
	require.NotNil(t, r.Error)

	for _, n := range names[7:] {
		require.True(t, h.record(t, n).Transferred, n)
	}
}

func TestRun_Cooldown(t *testing.T) {
	h := newHarness(t, Options{BatchSize: 2, Cooldown: time.Minute}, nil, repos("a", "b", "c", "d", "e")...)

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []time.Duration{time.Minute, time.Minute}, h.sleeps)
}

func TestRun_NonEmptyDestination(t *testing.T) {
	h := newHarness(t, Options{}, nil, repos("taken")...)
	h.dest.existing["taken"] = true

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	r := h.record(t, "taken")
	require.Equal(t, 1, r.RetryCount)
	require.Contains(t, *r.Error, "已有内容")
	require.Empty(t, h.exec.cloned)
	require.Empty(t, h.dest.deleted)
}

func TestRun_AdoptNonEmptyDestination(t *testing.T) {
	h := newHarness(t, Options{AdoptNonEmpty: true}, nil, repos("taken")...)
	h.dest.existing["taken"] = true

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Completed)
	require.True(t, h.record(t, "taken").Transferred)
	require.Empty(t, h.exec.cloned)
}

func TestRun_ResetsStaleProcessingFirst(t *testing.T) {
	records := repos("crashed")
	records[0].Processing = true
	h := newHarness(t, Options{}, nil, records...)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.StaleReset)
	require.True(t, h.record(t, "crashed").Transferred)
}

func TestRun_InterruptCleansUp(t *testing.T) {
	h := newHarness(t, Options{}, nil, repos("first", "second", "third")...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.exec.onClone = func(name string) {
		if name == "second" {
			cancel()
		}
	}

	report, err := h.orch.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, report.Interrupted)

	require.True(t, h.record(t, "first").Transferred)
	second := h.record(t, "second")
	require.False(t, second.Processing)
	require.Nil(t, second.Error)
	require.Zero(t, second.RetryCount)
	require.Equal(t, []string{"second"}, h.dest.deleted)
	require.Equal(t, []string{"first", "second"}, h.exec.cloned)
	requireWorkDirEmpty(t, h.work)
}

func TestRun_StoreUnavailable(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := repository.NewStateStore(repository.NewFileBackend(filepath.Join(t.TempDir(), "missing.yaml"), ""))
	orch := NewOrchestrator(Dependencies{Store: store}, Options{WorkDir: t.TempDir()}, logger)

	_, err := orch.Run(context.Background())
	require.ErrorIs(t, err, pkgErrors.ErrStoreUnavailable)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, Options{}, nil, repos("a")...)
	h.orch.running.Lock()
	defer h.orch.running.Unlock()

	_, err := h.orch.Run(context.Background())
	require.ErrorIs(t, err, pkgErrors.ErrRunInProgress)
}
