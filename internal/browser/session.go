// File: internal/browser/session.go

// Package browser adapts a chromedp session to the engine's driver contract:
// one descriptor in, Found/NotFound/Ambiguous out. Only infrastructure
// failures (dead browser, lost CDP transport) surface as errors.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/relock/internal/config"
	"github.com/xkilldash9x/relock/internal/engine"
	"github.com/xkilldash9x/relock/internal/locator"
	"go.uber.org/zap"
)

// Element is the handle returned to callers for a uniquely resolved node.
type Element struct {
	Descriptor    locator.Descriptor
	NodeID        cdp.NodeID
	BackendNodeID cdp.BackendNodeID
}

func (e *Element) String() string {
	return fmt.Sprintf("node %d via %s", e.BackendNodeID, e.Descriptor)
}

// Session owns one browser tab. It is not safe for concurrent attempts; a
// resolution walks its tiers sequentially and parallel resolutions must each
// bring their own Session.
type Session struct {
	ctx            context.Context
	cancelCtx      context.CancelFunc
	cancelAlloc    context.CancelFunc
	attemptTimeout time.Duration
	navTimeout     time.Duration
	log            *zap.Logger
}

var _ engine.Driver = (*Session)(nil)

// NewSession launches a browser and opens a fresh tab.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, cancelCtx := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so launch failures surface here
	// rather than inside the first attempt.
	if err := chromedp.Run(taskCtx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Session{
		ctx:            taskCtx,
		cancelCtx:      cancelCtx,
		cancelAlloc:    cancelAlloc,
		attemptTimeout: cfg.AttemptTimeout,
		navTimeout:     cfg.NavigationTimeout,
		log:            logger.Named("browser"),
	}, nil
}

// Navigate loads url and waits for the document to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout)
	defer cancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	s.log.Info("Navigation complete", zap.String("url", url))
	return nil
}

// Attempt resolves one descriptor against the live page.
//
// AtLeast(0) makes the node query return immediately instead of polling for
// a match, so a miss costs nothing. More than one matching node reports
// Ambiguous; a selector the browser rejects as malformed reports NotFound,
// since it can never match anything.
func (s *Session) Attempt(ctx context.Context, d locator.Descriptor) (engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return engine.Result{}, err
	}

	query, by, err := buildQuery(d)
	if err != nil {
		s.log.Warn("Descriptor cannot be compiled to a query",
			zap.String("descriptor", d.String()), zap.Error(err))
		return engine.Result{Outcome: engine.OutcomeNotFound}, nil
	}

	attemptCtx, cancel := context.WithTimeout(s.ctx, s.attemptTimeout)
	defer cancel()

	var nodes []*cdp.Node
	err = chromedp.Run(attemptCtx,
		chromedp.Nodes(query, &nodes, by, chromedp.AtLeast(0)),
	)
	if err != nil {
		// Protocol-level rejections (bad selector syntax, node gone mid
		// query) are per-attempt misses. Everything else means the session
		// is no longer trustworthy.
		var cdpErr *cdproto.Error
		if errors.As(err, &cdpErr) {
			s.log.Debug("CDP rejected locator query",
				zap.String("descriptor", d.String()), zap.Error(err))
			return engine.Result{Outcome: engine.OutcomeNotFound}, nil
		}
		if ctx.Err() != nil {
			return engine.Result{}, ctx.Err()
		}
		return engine.Result{}, fmt.Errorf("browser query failed: %w", err)
	}

	switch len(nodes) {
	case 0:
		return engine.Result{Outcome: engine.OutcomeNotFound}, nil
	case 1:
		return engine.Result{
			Outcome: engine.OutcomeFound,
			Handle: &Element{
				Descriptor:    d,
				NodeID:        nodes[0].NodeID,
				BackendNodeID: nodes[0].BackendNodeID,
			},
		}, nil
	default:
		return engine.Result{Outcome: engine.OutcomeAmbiguous}, nil
	}
}

// Close tears the tab and browser down.
func (s *Session) Close() {
	s.cancelCtx()
	s.cancelAlloc()
}
