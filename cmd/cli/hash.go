package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sevigo/patch-warden/internal/cache"
	"github.com/sevigo/patch-warden/internal/db"
	"github.com/sevigo/patch-warden/internal/ingest"
	"github.com/sevigo/patch-warden/internal/issues"
	"github.com/sevigo/patch-warden/internal/phabricator"
	"github.com/sevigo/patch-warden/internal/storage"
)

var (
	hashFile       string
	hashRepository string
	hashRevision   string
	hashClone      string
	hashRedis      string
	hashMarker     string
	hashRender     bool
	hashJSON       bool
	hashDiff       int
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Compute the identity hash of analyzer issues",
	Long: `Compute the position independent identity hash of every issue of an
analyzer report. File contents are read from a local git clone when --clone is
given, otherwise from the raw-file endpoint of the repository.`,
	Example: `  warden-cli hash --file issues.json --repository https://hg.mozilla.org/mozilla-central --revision abcdef
  warden-cli hash --file issues.json --clone ~/gecko --revision HEAD --render
  warden-cli hash --file issues.json --clone ~/gecko --revision HEAD --diff 1234`,
	RunE: runHash,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	hashCmd.Flags().StringVarP(&hashFile, "file", "f", "", "JSON list of issues")
	hashCmd.Flags().StringVar(&hashRepository, "repository", "https://hg.mozilla.org/mozilla-unified", "Repository serving raw files")
	hashCmd.Flags().StringVar(&hashRevision, "revision", "", "Revision the issues were found on")
	hashCmd.Flags().StringVar(&hashClone, "clone", "", "Local git clone to read files from")
	hashCmd.Flags().StringVar(&hashRedis, "redis", "", "Redis address used to cache raw files")
	hashCmd.Flags().StringVar(&hashMarker, "artifact-marker", "obj-", "Path fragment marking build artifacts")
	hashCmd.Flags().BoolVar(&hashRender, "render", false, "Render every issue as markdown")
	hashCmd.Flags().BoolVar(&hashJSON, "json", false, "Output hashes as JSON")
	hashCmd.Flags().IntVar(&hashDiff, "diff", 0, "Store the issues on this diff, with its revision and repository")
	_ = hashCmd.MarkFlagRequired("file")
	_ = hashCmd.MarkFlagRequired("revision")
	rootCmd.AddCommand(hashCmd)
}

type hashedIssue struct {
	Analyzer string `json:"analyzer"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Check    string `json:"check"`
	Hash     string `json:"hash"`
	Error    string `json:"error,omitempty"`
}

func runHash(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := newLogger()

	data, err := os.ReadFile(hashFile)
	if err != nil {
		return fmt.Errorf("failed to read issues: %w", err)
	}
	found, err := issues.Decode(data)
	if err != nil {
		return err
	}

	loader, err := newFileLoader(log)
	if err != nil {
		return err
	}
	hasher := issues.NewHasher(loader, hashMarker, log)

	var renderer *glamour.TermRenderer
	if hashRender {
		renderer, err = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("failed to create markdown renderer: %w", err)
		}
	}

	out := make([]hashedIssue, 0, len(found))
	for _, issue := range found {
		h := hashedIssue{Analyzer: issue.Analyzer, Path: issue.Path, Line: issue.Line, Check: issue.Check}
		h.Hash, err = issue.Hash(ctx, hasher)
		if err != nil {
			h.Error = err.Error()
		}
		out = append(out, h)

		if hashJSON {
			continue
		}
		if h.Error != "" {
			errorColor.Printf("%-32s ", "unidentified")
			fmt.Printf("%s (%s)\n", issue, h.Error)
		} else {
			successColor.Printf("%-32s ", h.Hash)
			fmt.Println(issue)
		}
		if renderer != nil {
			rendered, err := renderer.Render(issue.Markdown())
			if err != nil {
				warnColor.Printf("failed to render %s: %v\n", issue, err)
				continue
			}
			fmt.Print(rendered)
		}
	}

	if hashDiff > 0 {
		if err := storeIssues(ctx, found, hasher, log); err != nil {
			return err
		}
	}

	if hashJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}
	return nil
}

// storeIssues records the issues on the diff given by --diff, along with its
// revision and repository.
func storeIssues(ctx context.Context, found []*issues.Issue, hasher *issues.Hasher, log *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	conn, err := db.Open(ctx, &cfg.Database, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	client := phabricator.NewClient(cfg.Phabricator.URL, cfg.Phabricator.Token, nil, log)
	policy := issues.Policy{
		PublishableChecks: cfg.Issues.PublishableChecks,
		AllowedPaths:      cfg.Issues.AllowedPaths,
		DisabledChecks:    cfg.Issues.DisabledChecks,
	}
	in := ingest.New(client, storage.NewStore(conn.DB), hasher, policy, cfg.Repositories, log)

	summary, err := in.Ingest(ctx, hashDiff, hashRevision, found)
	if err != nil {
		return err
	}
	if !hashJSON {
		successColor.Printf("stored %d issues on diff %d", len(summary.Issues), hashDiff)
		dimColor.Printf(" (%d in patch, %d new for revision, %d unidentified)\n",
			summary.InPatch, summary.NewForRevision, summary.Unidentified)
	}
	return nil
}
