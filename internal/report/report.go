// Package report publishes build results on the review host.
package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/phabricator"
)

const (
	unitNamespace  = "code-review"
	artifactKey    = "treeherder"
	artifactName   = "CI (Treeherder) Jobs"
	remarkupFormat = "remarkup"
)

// Harbormaster is the build status API of the review host.
type Harbormaster interface {
	SendMessage(ctx context.Context, targetPHID string, state phabricator.BuildState, units []phabricator.UnitResult) error
	CreateURIArtifact(ctx context.Context, targetPHID, key, name, uri string) error
}

// Publisher maps results onto harbormaster updates. With publication
// disabled results are only logged.
type Publisher struct {
	api     Harbormaster
	enabled bool
	logger  *slog.Logger
}

// NewPublisher builds a publisher.
func NewPublisher(api Harbormaster, enabled bool, logger *slog.Logger) *Publisher {
	return &Publisher{api: api, enabled: enabled, logger: logger}
}

// Publish implements core.Publisher.
func (p *Publisher) Publish(ctx context.Context, result *core.Result) error {
	build := result.Build
	if !p.enabled {
		p.logger.Info("publication disabled, not reporting result",
			"mode", result.Mode,
			"build", build.String(),
			"message", result.Message,
			"treeherder_url", result.TreeherderURL,
		)
		return nil
	}
	p.logger.Debug("publishing build update", "mode", result.Mode, "build", build.String())

	target := build.TargetPHID
	switch result.Mode {
	case core.ResultWork:
		return p.api.SendMessage(ctx, target, phabricator.BuildWork, nil)

	case core.ResultSuccess:
		if result.TestSelection {
			p.logger.Info("build is sampled for test selection", "build", build.String(), "revision", result.Revision)
		}
		if build.MissingBaseRevision {
			warning := phabricator.UnitResult{
				Namespace: unitNamespace,
				Name:      "mercurial",
				Result:    phabricator.UnitUnsound,
				Details: fmt.Sprintf("WARNING: The base revision of your patch is not available in the current repository.\n"+
					"Your patch has been rebased on %s: issues may be positioned on the wrong lines.", build.ActualBaseRevision),
			}
			if err := p.api.SendMessage(ctx, target, phabricator.BuildWork, []phabricator.UnitResult{warning}); err != nil {
				return fmt.Errorf("failed to publish missing base warning: %w", err)
			}
		}
		if err := p.api.CreateURIArtifact(ctx, target, artifactKey, artifactName, result.TreeherderURL); err != nil {
			return fmt.Errorf("failed to publish treeherder link: %w", err)
		}
		return nil

	case core.ResultFailGeneral:
		return p.api.SendMessage(ctx, target, phabricator.BuildFail, []phabricator.UnitResult{{
			Namespace: unitNamespace,
			Name:      "general",
			Result:    phabricator.UnitBroken,
			Details:   fmt.Sprintf("WARNING: An error occurred in the code review bot.\n\n```%s```", result.Message),
			Format:    remarkupFormat,
		}})

	case core.ResultFailMercurial:
		extra := ""
		if build.MissingBaseRevision {
			extra = fmt.Sprintf(" because the parent revision (%s) does not exist in the repository. If possible, you should publish that revision", build.BaseRevision)
		}
		return p.api.SendMessage(ctx, target, phabricator.BuildFail, []phabricator.UnitResult{{
			Namespace: unitNamespace,
			Name:      "mercurial",
			Result:    phabricator.UnitFail,
			Details:   fmt.Sprintf("WARNING: The code review bot failed to apply your patch%s.\n\n```%s```", extra, result.Message),
			Format:    remarkupFormat,
		}})

	case core.ResultFailIneligible:
		p.logger.Info("build is not eligible for try", "build", build.String(), "reason", result.Message)
		return p.api.SendMessage(ctx, target, phabricator.BuildPass, nil)

	default:
		p.logger.Warn("unsupported publication", "mode", result.Mode, "build", build.String())
		return nil
	}
}
