// Package app wires the collaborators for each sync invocation. Connections
// are opened when a pass starts and closed when it ends; nothing is shared
// between invocations except the immutable configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"db_sheets_sync/internal/config"
	"db_sheets_sync/internal/notifications"
	"db_sheets_sync/internal/pipeline"
	"db_sheets_sync/internal/secrets"
	"db_sheets_sync/internal/sheets"
	"db_sheets_sync/internal/source"
	"db_sheets_sync/internal/xlsx"

	"github.com/rs/zerolog/log"
)

type SourceOpener func(ctx context.Context, cfg config.DatabaseConfig) (pipeline.Source, io.Closer, error)

type DestinationOpener func(ctx context.Context, cfg config.Config) (pipeline.Destination, io.Closer, error)

type Service struct {
	cfg             config.Config
	notifier        *notifications.Client
	openSource      SourceOpener
	openDestination DestinationOpener
}

func NewService(cfg config.Config) *Service {
	return &Service{
		cfg:             cfg,
		notifier:        notifications.NewClient(cfg.Notify, config.DefaultResilienceConfig.Notification),
		openSource:      OpenSource,
		openDestination: OpenDestination,
	}
}

func (s *Service) Targets() []config.Target {
	return append([]config.Target(nil), s.cfg.Targets...)
}

// SyncAll runs one pass over every target. The error is only set when the
// collaborators could not be opened; per-target failures are in the summary.
func (s *Service) SyncAll(ctx context.Context) (pipeline.Summary, error) {
	var summary pipeline.Summary
	err := s.session(ctx, func(c *pipeline.Coordinator) {
		summary = c.RunAll(ctx)
	})
	if err != nil {
		return pipeline.Summary{}, err
	}

	s.notify(ctx, summary)
	return summary, nil
}

// SyncTarget runs a single named target.
func (s *Service) SyncTarget(ctx context.Context, name string) (pipeline.Outcome, error) {
	if _, ok := s.cfg.Target(name); !ok {
		return pipeline.Outcome{}, fmt.Errorf("%w: %q", pipeline.ErrTargetNotFound, name)
	}

	var outcome pipeline.Outcome
	var runErr error
	err := s.session(ctx, func(c *pipeline.Coordinator) {
		outcome, runErr = c.RunOne(ctx, name)
	})
	if err != nil {
		return pipeline.Outcome{}, err
	}
	if runErr != nil {
		return pipeline.Outcome{}, runErr
	}

	if outcome.Status != pipeline.StatusSuccess {
		s.notify(ctx, pipeline.Summary{Status: outcome.Status, Failed: 1, Outcomes: []pipeline.Outcome{outcome}})
	}
	return outcome, nil
}

// Show reads the first rows rows of a target's sheet from the destination.
func (s *Service) Show(ctx context.Context, name string, rows int) ([][]any, error) {
	target, ok := s.cfg.Target(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", pipeline.ErrTargetNotFound, name)
	}

	dest, closer, err := s.openDestination(ctx, s.cfg)
	if err != nil {
		return nil, &pipeline.ConnectionError{Collaborator: "destination", Op: "open", Err: err}
	}
	defer closeLogged("destination", closer)

	reader, ok := dest.(pipeline.Reader)
	if !ok {
		return nil, fmt.Errorf("destination %q cannot be read back", s.cfg.Destination.Kind)
	}
	return reader.Read(ctx, target.Sheet, rows)
}

func (s *Service) session(ctx context.Context, fn func(*pipeline.Coordinator)) (err error) {
	src, srcCloser, err := s.openSource(ctx, s.cfg.Database)
	if err != nil {
		return &pipeline.ConnectionError{Collaborator: "source", Op: "open", Err: err}
	}
	defer closeLogged("source", srcCloser)

	dest, destCloser, err := s.openDestination(ctx, s.cfg)
	if err != nil {
		return &pipeline.ConnectionError{Collaborator: "destination", Op: "open", Err: err}
	}
	defer func() {
		if cerr := destCloser.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("Failed to close destination")
			err = errors.Join(err, &pipeline.ConnectionError{Collaborator: "destination", Op: "close", Err: cerr})
		}
	}()

	orchestrator := pipeline.NewOrchestrator(src, dest, pipeline.OptionsFrom(s.cfg.Sync))
	fn(pipeline.NewCoordinator(orchestrator, s.cfg))
	return nil
}

func (s *Service) notify(ctx context.Context, summary pipeline.Summary) {
	if err := s.notifier.NotifySummary(ctx, summary); err != nil {
		log.Warn().Err(err).Msg("Failed to send failure notification")
	}

	sent, failed := s.notifier.GetMetrics()
	log.Debug().
		Int64("notifications_sent", sent).
		Int64("notifications_failed", failed).
		Msg("Notification totals")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func closeLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("collaborator", name).Msg("Failed to close")
	}
}

// OpenSource connects to the configured database.
func OpenSource(ctx context.Context, cfg config.DatabaseConfig) (pipeline.Source, io.Closer, error) {
	db, err := source.Open(ctx, cfg.Driver, cfg.ConnectionString(), cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}
	return db, db, nil
}

// OpenDestination opens the Google spreadsheet or the local workbook,
// depending on the configured destination kind.
func OpenDestination(ctx context.Context, cfg config.Config) (pipeline.Destination, io.Closer, error) {
	switch cfg.Destination.Kind {
	case config.DestinationXLSX:
		wb, err := xlsx.Open(cfg.Destination.XLSXPath)
		if err != nil {
			return nil, nil, err
		}
		return wb, wb, nil

	case config.DestinationSheets:
		var provider secrets.Provider
		if cfg.Credentials.JSON == "" {
			aws, err := secrets.NewAWSProvider(ctx)
			if err != nil {
				return nil, nil, err
			}
			provider = aws
		}

		creds, err := secrets.ResolveCredentials(ctx, cfg.Credentials, provider, config.DefaultResilienceConfig.SecretFetch)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve credentials: %w", err)
		}

		credsOpt, err := sheets.CredentialsFromJSON(ctx, creds)
		if err != nil {
			return nil, nil, err
		}

		client, err := sheets.NewClient(ctx, cfg.Destination.SpreadsheetID, credsOpt)
		if err != nil {
			return nil, nil, err
		}
		client.WithValueInput(cfg.Destination.ValueInput)
		return client, nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported destination %q", cfg.Destination.Kind)
	}
}
