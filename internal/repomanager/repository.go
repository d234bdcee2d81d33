package repomanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sevigo/patch-warden/internal/config"
	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/github"
	"github.com/sevigo/patch-warden/internal/hgutil"
	"github.com/sevigo/patch-warden/internal/metrics"
)

const (
	// LatestRevision is the base identifier of repositories always applying
	// on their newest changeset.
	LatestRevision = "latest"
	// BotAuthor signs commits whose patch carries no author metadata.
	BotAuthor = "Patch Warden <patch-warden@noreply.localhost>"
	// TriggerFile is the CI trigger file committed before pushing.
	TriggerFile = "try_task_config.json"

	fullHashLength   = 40
	importSimilarity = 95
	fallbackBackend  = "patch"
)

// Repository owns one local clone and drives it through the clean, apply
// and push cycle. Implementations are not safe for concurrent use; callers
// serialize access through Manager.Acquire.
//
//go:generate mockgen -destination=../../mocks/mock_repository.go -package=mocks . Repository
type Repository interface {
	Name() string
	TryName() string
	Cloned() bool
	Clone(ctx context.Context) error
	HasRevision(ctx context.Context, ref string) bool
	ResolveBaseHash(ctx context.Context, ref string) string
	BaseIdentifier(ctx context.Context, stack core.PatchStack) string
	Apply(ctx context.Context, build *core.Build, stack core.PatchStack) error
	WriteCITrigger(ctx context.Context, build *core.Build) error
	PushToTry(ctx context.Context) (string, error)
	Reset(ctx context.Context) error
}

// HashMapper translates a full git hash into the matching mercurial hash.
type HashMapper interface {
	GitToHg(ctx context.Context, gitHash string) (string, error)
}

// Options holds the collaborators shared by every repository.
type Options struct {
	ReposDir        string
	Hg              config.HgConfig
	TransientErrors []string
	Commits         github.CommitLookup
	Mapper          HashMapper
}

type hgRepository struct {
	cfg       config.RepositoryConfig
	dir       string
	shareBase string
	hg        config.HgConfig
	client    *hgutil.Client
	commits   github.CommitLookup
	mapper    HashMapper
	transient classifier
	logger    *slog.Logger

	mu   sync.Mutex
	root string
}

// NewRepository builds the clone manager of one configured repository. The
// clone lives in <ReposDir>/<name>.
func NewRepository(cfg config.RepositoryConfig, client *hgutil.Client, opts Options, logger *slog.Logger) Repository {
	shareBase := opts.Hg.ShareBase
	if shareBase == "" {
		shareBase = filepath.Join(opts.ReposDir, "shared")
	}
	return &hgRepository{
		cfg:       cfg,
		dir:       filepath.Join(opts.ReposDir, cfg.Name),
		shareBase: shareBase,
		hg:        opts.Hg,
		client:    client,
		commits:   opts.Commits,
		mapper:    opts.Mapper,
		transient: classifier(opts.TransientErrors),
		logger:    logger.With("repo", cfg.Name),
	}
}

func (r *hgRepository) Name() string    { return r.cfg.Name }
func (r *hgRepository) TryName() string { return r.cfg.TryName }

// Cloned reports whether the clone directory holds a mercurial repository.
func (r *hgRepository) Cloned() bool {
	info, err := os.Stat(filepath.Join(r.dir, ".hg"))
	return err == nil && info.IsDir()
}

// ensureOpen verifies the clone before any operation touching it, and
// re-checks it after a failed command dropped the cached root.
func (r *hgRepository) ensureOpen(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.root != "" {
		return nil
	}
	if !r.Cloned() {
		return &VcsError{Message: fmt.Sprintf("cannot open %s", r.dir), Err: ErrNotCloned}
	}
	root, err := r.client.Root(ctx, r.dir)
	if err != nil {
		return r.transient.wrap(fmt.Sprintf("cannot open %s", r.dir), err)
	}
	r.root = root
	return nil
}

func (r *hgRepository) drop() {
	r.mu.Lock()
	r.root = ""
	r.mu.Unlock()
}

// fail classifies a command failure and forces the next operation to
// reopen the clone.
func (r *hgRepository) fail(message string, err error) error {
	r.drop()
	return r.transient.wrap(message, err)
}

func (r *hgRepository) Clone(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(r.dir), 0750); err != nil {
		return &VcsError{Message: "failed to create repository parent directory", Err: err}
	}
	r.logger.InfoContext(ctx, "cloning repository", "url", r.cfg.URL, "checkout", r.cfg.Checkout, "path", r.dir)

	var err error
	switch r.cfg.Checkout {
	case config.CheckoutPlain:
		err = r.client.Clone(ctx, r.cfg.URL, r.dir, "", false)
	case config.CheckoutBatch:
		err = r.cloneBatched(ctx)
	case config.CheckoutRobust:
		if err = os.MkdirAll(r.shareBase, 0750); err == nil {
			err = r.client.RobustCheckout(ctx, r.hg.RobustCheckoutPath, r.cfg.URL, r.dir, r.shareBase, "default")
		}
	default:
		return &VcsError{Message: fmt.Sprintf("unsupported checkout mode %q", r.cfg.Checkout)}
	}
	if err != nil {
		return r.fail("failed to clone "+r.cfg.URL, err)
	}

	r.drop()
	r.logger.InfoContext(ctx, "repository cloned", "path", r.dir)
	return nil
}

// cloneBatched clones a first batch of revisions then pulls the history
// batch by batch, which large remotes tolerate better than one full clone.
func (r *hgRepository) cloneBatched(ctx context.Context) error {
	batch := r.cfg.BatchSize
	if err := r.client.Clone(ctx, r.cfg.URL, r.dir, strconv.Itoa(batch), true); err != nil {
		return err
	}
	for start := 2 * batch; ; start += batch {
		err := r.client.Pull(ctx, r.dir, r.cfg.URL, strconv.Itoa(start))
		if err == nil {
			r.logger.DebugContext(ctx, "pulled batch", "revision", start)
			continue
		}
		if strings.Contains(hgutil.Output(err), "unknown revision") {
			break
		}
		return err
	}
	if err := r.client.Pull(ctx, r.dir, r.cfg.URL, ""); err != nil {
		return err
	}
	return r.client.Update(ctx, r.dir, "default")
}

// HasRevision never fails: any lookup error means the revision is unknown.
func (r *hgRepository) HasRevision(ctx context.Context, ref string) bool {
	if ref == "" {
		return false
	}
	if err := r.ensureOpen(ctx); err != nil {
		return false
	}
	_, err := r.client.Identify(ctx, r.dir, ref)
	return err == nil
}

// ResolveBaseHash turns an abbreviated foreign hash into a native one,
// falling back to the default revision on any failure.
func (r *hgRepository) ResolveBaseHash(ctx context.Context, ref string) string {
	if len(ref) == fullHashLength {
		return ref
	}
	fallback := func(reason string, err error) string {
		r.logger.WarnContext(ctx, "falling back to default revision",
			"reference", ref,
			"default", r.cfg.DefaultRevision,
			"reason", reason,
			"error", err,
		)
		return r.cfg.DefaultRevision
	}

	if r.commits == nil || r.mapper == nil {
		return fallback("no revision translation configured", nil)
	}
	gitHash, err := r.commits.FullHash(ctx, ref)
	if err != nil {
		return fallback("commit lookup failed", err)
	}
	hgHash, err := r.mapper.GitToHg(ctx, gitHash)
	if err != nil {
		return fallback("hash mapping failed", err)
	}
	r.logger.InfoContext(ctx, "resolved base revision", "reference", ref, "git", gitHash, "hg", hgHash)
	return hgHash
}

func (r *hgRepository) BaseIdentifier(ctx context.Context, stack core.PatchStack) string {
	if r.cfg.UseLatestRevision {
		return LatestRevision
	}
	if len(stack) == 0 {
		return r.cfg.DefaultRevision
	}
	base := stack[0].BaseRevision
	if r.HasRevision(ctx, base) {
		return base
	}
	return r.ResolveBaseHash(ctx, base)
}

// neededPatches walks the stack newest first and keeps the patches to
// apply, stopping at the first one whose base is available locally.
func (r *hgRepository) neededPatches(ctx context.Context, stack core.PatchStack) core.PatchStack {
	var needed core.PatchStack
	for i := len(stack) - 1; i >= 0; i-- {
		patch := stack[i]
		if patch.Merged {
			r.logger.InfoContext(ctx, "skipping merged patch", "patch", patch.ID)
			continue
		}
		needed = append(core.PatchStack{patch}, needed...)
		if r.HasRevision(ctx, patch.BaseRevision) {
			break
		}
	}
	return needed
}

func (r *hgRepository) Apply(ctx context.Context, build *core.Build, stack core.PatchStack) error {
	if err := r.ensureOpen(ctx); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.ApplyDuration.WithLabelValues(r.cfg.Name).Observe(time.Since(start).Seconds())
	}()

	needed := r.neededPatches(ctx, stack)
	if len(needed) == 0 {
		r.logger.InfoContext(ctx, "no patch to apply", "build", build.String())
		return nil
	}

	base := r.BaseIdentifier(ctx, needed)
	actual := base
	switch {
	case base == LatestRevision:
		actual = "tip"
	case !r.HasRevision(ctx, base):
		r.logger.WarnContext(ctx, "base revision missing, using default revision",
			"build", build.String(),
			"base", base,
			"default", r.cfg.DefaultRevision,
		)
		build.MissingBaseRevision = true
		actual = r.cfg.DefaultRevision
	}
	build.BaseRevision = base
	build.ActualBaseRevision = actual

	if err := r.client.Update(ctx, r.dir, actual); err != nil {
		return r.fail("failed to update to "+actual, err)
	}

	for _, patch := range needed {
		if err := r.importPatch(ctx, patch); err != nil {
			return err
		}
	}
	return nil
}

func (r *hgRepository) importPatch(ctx context.Context, patch *core.Patch) error {
	file, err := os.CreateTemp("", fmt.Sprintf("patch-%d-*.diff", patch.ID))
	if err != nil {
		return &VcsError{Message: "failed to stage patch", Err: err}
	}
	defer os.Remove(file.Name())
	if _, err := file.WriteString(patch.Content); err != nil {
		file.Close()
		return &VcsError{Message: "failed to stage patch", Err: err}
	}
	if err := file.Close(); err != nil {
		return &VcsError{Message: "failed to stage patch", Err: err}
	}

	opts := hgutil.ImportOptions{
		Message:    commitMessage(patch),
		User:       patch.Author(),
		Similarity: importSimilarity,
	}
	if opts.User == "" {
		opts.User = BotAuthor
	}

	r.logger.InfoContext(ctx, "applying patch", "patch", patch.ID, "base", patch.BaseRevision)
	err = r.client.Import(ctx, r.dir, file.Name(), opts)
	if err == nil {
		return nil
	}

	r.logger.WarnContext(ctx, "patch import failed, retrying with alternate backend", "patch", patch.ID, "error", err)
	if revertErr := r.client.Revert(ctx, r.dir); revertErr != nil {
		return r.fail("failed to clean after import failure", revertErr)
	}
	opts.PatchTool = fallbackBackend
	if err := r.client.Import(ctx, r.dir, file.Name(), opts); err != nil {
		return r.fail(fmt.Sprintf("failed to apply patch %d", patch.ID), err)
	}
	return nil
}

func commitMessage(patch *core.Patch) string {
	message := fmt.Sprintf("Patch %d", patch.ID)
	if len(patch.Commits) > 0 && strings.TrimSpace(patch.Commits[0].Message) != "" {
		message = strings.TrimSpace(patch.Commits[0].Message)
	}
	return fmt.Sprintf("%s\n\nDifferential Diff: %s", message, patch.PHID)
}

// TriggerConfig renders the CI trigger file of a build target.
func TriggerConfig(targetPHID string) ([]byte, error) {
	target, err := json.Marshal(targetPHID)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil,
		`{"version": 2, "parameters": {"target_tasks_method": "codereview", "optimize_target_tasks": true, "phabricator_diff": %s}}`,
		target,
	), nil
}

func (r *hgRepository) WriteCITrigger(ctx context.Context, build *core.Build) error {
	if err := r.ensureOpen(ctx); err != nil {
		return err
	}
	content, err := TriggerConfig(build.TargetPHID)
	if err != nil {
		return &VcsError{Message: "failed to render trigger file", Err: err}
	}
	path := filepath.Join(r.dir, TriggerFile)
	if err := os.WriteFile(path, content, 0600); err != nil {
		return &VcsError{Message: "failed to write trigger file", Err: err}
	}

	message := "try_task_config for code-review"
	if last := build.Stack.Last(); last != nil {
		message += "\nDifferential Diff: " + last.PHID
	}
	if err := r.client.Commit(ctx, r.dir, message, BotAuthor, path); err != nil {
		return r.fail("failed to commit trigger file", err)
	}
	return nil
}

func (r *hgRepository) sshCommand() string {
	if r.cfg.SSHKeyPath == "" && r.cfg.SSHUser == "" {
		return ""
	}
	parts := []string{"ssh"}
	if r.cfg.SSHKeyPath != "" {
		parts = append(parts, "-i", r.cfg.SSHKeyPath)
	}
	if r.cfg.SSHUser != "" {
		parts = append(parts, "-l", r.cfg.SSHUser)
	}
	return strings.Join(parts, " ")
}

func (r *hgRepository) PushToTry(ctx context.Context) (string, error) {
	if err := r.ensureOpen(ctx); err != nil {
		return "", err
	}
	if r.cfg.TryURL == "" {
		return "", &VcsError{Message: fmt.Sprintf("repository %s has no try url", r.cfg.Name)}
	}

	r.logger.InfoContext(ctx, "pushing to try", "url", r.cfg.TryURL)
	if err := r.client.Push(ctx, r.dir, r.cfg.TryURL, "tip", r.sshCommand()); err != nil {
		return "", r.fail("failed to push to try", err)
	}
	tip, err := r.client.Log(ctx, r.dir, "tip", "{node}")
	if err != nil {
		return "", r.fail("failed to read pushed revision", err)
	}
	return tip, nil
}

// Reset discards local changes and drafts, then pulls the remote.
func (r *hgRepository) Reset(ctx context.Context) error {
	if err := r.ensureOpen(ctx); err != nil {
		return err
	}
	if err := r.client.Revert(ctx, r.dir); err != nil {
		return r.fail("failed to revert local changes", err)
	}
	if err := r.client.Strip(ctx, r.dir, "not public()"); err != nil {
		if !strings.Contains(hgutil.Output(err), "empty revision set") {
			return r.fail("failed to strip draft changesets", err)
		}
		r.logger.DebugContext(ctx, "no draft changeset to strip")
	}
	if err := r.client.Pull(ctx, r.dir, r.cfg.URL, ""); err != nil {
		return r.fail("failed to pull from "+r.cfg.URL, err)
	}
	return nil
}
