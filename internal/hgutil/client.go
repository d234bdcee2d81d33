// Package hgutil provides a client for working with Mercurial repositories
// through the hg command line.
package hgutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandError is returned when an hg invocation exits with an error. Output
// holds the combined stdout and stderr of the command.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	name := "hg"
	if len(e.Args) > 0 {
		name += " " + e.Args[0]
	}
	return fmt.Sprintf("%s failed: %s: %v", name, strings.TrimSpace(e.Output), e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Output returns the command output carried by err, or its message.
func Output(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return strings.TrimSpace(cmdErr.Output)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Runner executes one hg command in dir.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

type execRunner struct {
	binary string
}

// NewExecRunner runs the hg binary found at binary (or on PATH).
func NewExecRunner(binary string) Runner {
	if binary == "" {
		binary = "hg"
	}
	return &execRunner{binary: binary}
}

func (r *execRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir
	// Plain output regardless of the user configuration.
	cmd.Env = append(cmd.Environ(), "HGPLAIN=1")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), &CommandError{Args: args, Output: string(out), Err: err}
	}
	return string(out), nil
}

// Client handles interacting with Mercurial repositories.
type Client struct {
	runner Runner
	logger *slog.Logger
}

// NewClient returns a new Client instance.
func NewClient(runner Runner, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{runner: runner, logger: logger}
}

func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	c.logger.DebugContext(ctx, "running hg", "dir", dir, "args", args)
	return c.runner.Run(ctx, dir, args...)
}

// Clone clones url into dest. A non-empty revision limits the clone to the
// ancestors of that revision.
func (c *Client) Clone(ctx context.Context, url, dest, revision string, noUpdate bool) error {
	args := []string{"clone"}
	if noUpdate {
		args = append(args, "--noupdate")
	}
	if revision != "" {
		args = append(args, "--rev", revision)
	}
	args = append(args, url, dest)
	c.logger.InfoContext(ctx, "cloning repository", "url", url, "path", dest)
	_, err := c.run(ctx, "", args...)
	return err
}

// RobustCheckout clones or refreshes dest through the robustcheckout
// extension, sharing storage under shareBase.
func (c *Client) RobustCheckout(ctx context.Context, extensionPath, url, dest, shareBase, branch string) error {
	args := []string{}
	if extensionPath != "" {
		args = append(args, "--config", "extensions.robustcheckout="+extensionPath)
	}
	args = append(args, "robustcheckout", "--sharebase", shareBase, "--purge", "--branch", branch, url, dest)
	c.logger.InfoContext(ctx, "robust checkout", "url", url, "path", dest)
	_, err := c.run(ctx, "", args...)
	return err
}

// Pull pulls from source, or the default path when source is empty. A
// non-empty revision limits the pull to its ancestors.
func (c *Client) Pull(ctx context.Context, dir, source, revision string) error {
	args := []string{"pull"}
	if revision != "" {
		args = append(args, "--rev", revision)
	}
	if source != "" {
		args = append(args, source)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// Identify returns the full node of a revision.
func (c *Client) Identify(ctx context.Context, dir, revision string) (string, error) {
	out, err := c.run(ctx, dir, "identify", "--debug", "--id", "--rev", revision)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSpace(out), "+"), nil
}

// Update checks out revision, discarding local modifications.
func (c *Client) Update(ctx context.Context, dir, revision string) error {
	_, err := c.run(ctx, dir, "update", "--clean", "--rev", revision)
	return err
}

// ImportOptions configures Import.
type ImportOptions struct {
	Message    string
	User       string
	Similarity int
	// PatchTool selects an alternate patch application backend.
	PatchTool string
}

// Import commits the patch read from patchFile.
func (c *Client) Import(ctx context.Context, dir, patchFile string, opts ImportOptions) error {
	args := []string{}
	if opts.PatchTool != "" {
		args = append(args, "--config", "ui.patch="+opts.PatchTool)
	}
	args = append(args, "import", patchFile, "--message", opts.Message, "--user", opts.User)
	if opts.Similarity > 0 {
		args = append(args, "--similarity", fmt.Sprintf("%d", opts.Similarity))
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// Commit commits the listed files, adding untracked ones.
func (c *Client) Commit(ctx context.Context, dir, message, user string, files ...string) error {
	args := append([]string{"commit", "--addremove", "--message", message, "--user", user}, files...)
	_, err := c.run(ctx, dir, args...)
	return err
}

// Push pushes revision to dest, forcing new heads.
func (c *Client) Push(ctx context.Context, dir, dest, revision, ssh string) error {
	args := []string{"push", "--rev", revision, "--force", dest}
	if ssh != "" {
		args = append(args, "--ssh", ssh)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// Log renders revision with a template.
func (c *Client) Log(ctx context.Context, dir, revision, template string) (string, error) {
	out, err := c.run(ctx, dir, "log", "--rev", revision, "--template", template)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Revert discards every uncommitted change.
func (c *Client) Revert(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "revert", "--all", "--no-backup")
	return err
}

// Strip removes the changesets matching revset without keeping a bundle.
func (c *Client) Strip(ctx context.Context, dir, revset string) error {
	_, err := c.run(ctx, dir, "--config", "extensions.strip=", "strip", "--no-backup", "--rev", revset)
	return err
}

// Root returns the root of the repository containing dir.
func (c *Client) Root(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "root")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
