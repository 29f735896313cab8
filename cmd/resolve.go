// File: cmd/resolve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/xkilldash9x/relock/internal/browser"
	"github.com/xkilldash9x/relock/internal/config"
	"github.com/xkilldash9x/relock/internal/engine"
	"github.com/xkilldash9x/relock/internal/gateway"
	"github.com/xkilldash9x/relock/internal/locator"
	"github.com/xkilldash9x/relock/internal/observability"
	"github.com/xkilldash9x/relock/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	resolveURL      string
	locatorsFile    string
	resolveTargets  []string
	resolveParallel int
)

// newResolveCmd creates and returns the resolve command.
func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve elements from a locator map against a live page, healing drifted locators.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			logger := observability.GetLogger()

			opts := resolveOptions{
				URL:          resolveURL,
				LocatorsFile: locatorsFile,
				Targets:      resolveTargets,
				Parallel:     resolveParallel,
			}
			// The real session factory; tests substitute their own.
			newSession := func(ctx context.Context, bcfg config.BrowserConfig, log *zap.Logger) (targetSession, error) {
				return browser.NewSession(ctx, bcfg, log)
			}
			return runResolve(cmd.Context(), cfg, logger, opts, newSession)
		},
	}

	cmd.Flags().StringVar(&resolveURL, "url", "", "Page URL to resolve against.")
	cmd.Flags().StringVar(&locatorsFile, "locators", "locators.yaml", "Path to the locator map file.")
	cmd.Flags().StringSliceVar(&resolveTargets, "target", nil, "Element name(s) to resolve (default: all in the map).")
	cmd.Flags().IntVar(&resolveParallel, "parallel", 1, "Independent browser sessions to run concurrently.")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func init() {
	rootCmd.AddCommand(newResolveCmd())
}

// resolveOptions carries the command's flag values into the testable core.
type resolveOptions struct {
	URL          string
	LocatorsFile string
	Targets      []string
	Parallel     int
}

// targetSession is what one resolution needs from a browser session.
type targetSession interface {
	engine.Driver
	Navigate(ctx context.Context, url string) error
	Digest(ctx context.Context, maxBytes int) (string, error)
	Close()
}

// sessionFactory creates a fresh, independent browser session per target.
type sessionFactory func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (targetSession, error)

// runResolve contains the testable business logic for the command. Every
// target gets its own session; the store is the only shared resource and
// serializes itself.
func runResolve(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts resolveOptions, newSession sessionFactory) error {
	locMap, err := locator.LoadMap(opts.LocatorsFile)
	if err != nil {
		return err
	}

	targets := opts.Targets
	if len(targets) == 0 {
		targets = locMap.Names()
	}
	for _, name := range targets {
		if _, ok := locMap[name]; !ok {
			return fmt.Errorf("element %q not present in %s", name, opts.LocatorsFile)
		}
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for _, name := range targets {
		spec := locMap[name]
		g.Go(func() error {
			handle, err := resolveTarget(gctx, cfg, logger, st, spec, opts.URL, newSession)
			if err != nil {
				logger.Error("Element resolution failed",
					zap.String("element", name), zap.Error(err))
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				// A fatal session error only poisons this target's session;
				// the other targets keep their own.
				return nil
			}
			logger.Info("Element resolved",
				zap.String("element", name),
				zap.String("handle", handle.String()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(failures...)
}

// resolveTarget runs one element spec through a dedicated session.
func resolveTarget(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	st store.Store,
	spec locator.ElementSpec,
	url string,
	newSession sessionFactory,
) (engine.Handle, error) {
	sess, err := newSession(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, url); err != nil {
		return nil, err
	}

	var gw engine.Gateway
	if cfg.Gateway.Enabled && cfg.Gateway.APIKey != "" {
		pageContext := func(ctx context.Context) (string, error) {
			return sess.Digest(ctx, cfg.Gateway.DigestBytes)
		}
		gemini, err := gateway.NewGemini(cfg.Gateway, pageContext, logger)
		if err != nil {
			logger.Warn("Suggestion gateway disabled", zap.Error(err))
		} else {
			gw = gemini
		}
	}

	return engine.New(sess, st, gw, logger).Resolve(ctx, spec)
}

// openStore builds the configured locator store backing.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Type {
	case "", "file":
		path := cfg.Store.Path
		if path == "" {
			var err error
			if path, err = store.DefaultPath(); err != nil {
				return nil, err
			}
		}
		return store.OpenFile(path, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		st, err := store.NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
	}
}
