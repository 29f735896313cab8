// File: cmd/resolve_test.go
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/relock/internal/config"
	"github.com/xkilldash9x/relock/internal/engine"
	"github.com/xkilldash9x/relock/internal/locator"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testLocatorMap = `
elements:
  login_button:
    primary: {strategy: id, value: submit}
    fallbacks:
      - {strategy: css, value: "#submit"}
  search_box:
    primary: {strategy: name, value: q}
`

// fakeSession resolves any descriptor listed in resolvable; everything else
// is a miss.
type fakeSession struct {
	mu         sync.Mutex
	resolvable map[locator.Descriptor]bool
	navigated  []string
	closed     bool
}

type fakeSessionHandle struct{ d locator.Descriptor }

func (h *fakeSessionHandle) String() string { return "resolved via " + h.d.String() }

func (s *fakeSession) Attempt(_ context.Context, d locator.Descriptor) (engine.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolvable[d] {
		return engine.Result{Outcome: engine.OutcomeFound, Handle: &fakeSessionHandle{d: d}}, nil
	}
	return engine.Result{Outcome: engine.OutcomeNotFound}, nil
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) Digest(context.Context, int) (string, error) { return "", nil }

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func writeTestAssets(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()

	mapPath := filepath.Join(dir, "locators.yaml")
	require.NoError(t, os.WriteFile(mapPath, []byte(testLocatorMap), 0o644))

	cfg := config.Defaults()
	cfg.Store.Path = filepath.Join(dir, "locators.jsonl")
	cfg.Gateway.Enabled = false
	return &cfg, mapPath
}

func TestRunResolveAllTargets(t *testing.T) {
	cfg, mapPath := writeTestAssets(t)
	logger := zaptest.NewLogger(t)

	var (
		mu       sync.Mutex
		sessions []*fakeSession
	)
	factory := func(_ context.Context, _ config.BrowserConfig, _ *zap.Logger) (targetSession, error) {
		s := &fakeSession{resolvable: map[locator.Descriptor]bool{
			locator.MustNew("id", "submit"): true,
			locator.MustNew("name", "q"):    true,
		}}
		mu.Lock()
		sessions = append(sessions, s)
		mu.Unlock()
		return s, nil
	}

	opts := resolveOptions{URL: "https://example.test/login", LocatorsFile: mapPath, Parallel: 2}
	err := runResolve(context.Background(), cfg, logger, opts, factory)
	require.NoError(t, err)

	require.Len(t, sessions, 2, "every target gets its own session")
	for _, s := range sessions {
		assert.Equal(t, []string{"https://example.test/login"}, s.navigated)
		assert.True(t, s.closed)
	}
}

func TestRunResolveReportsFailuresPerTarget(t *testing.T) {
	cfg, mapPath := writeTestAssets(t)

	// Only the search box resolves; the login button exhausts.
	factory := func(context.Context, config.BrowserConfig, *zap.Logger) (targetSession, error) {
		return &fakeSession{resolvable: map[locator.Descriptor]bool{
			locator.MustNew("name", "q"): true,
		}}, nil
	}

	opts := resolveOptions{URL: "https://example.test", LocatorsFile: mapPath}
	err := runResolve(context.Background(), cfg, zaptest.NewLogger(t), opts, factory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login_button")
	assert.NotContains(t, err.Error(), "search_box")
}

func TestRunResolveUnknownTarget(t *testing.T) {
	cfg, mapPath := writeTestAssets(t)

	opts := resolveOptions{URL: "https://example.test", LocatorsFile: mapPath, Targets: []string{"missing"}}
	err := runResolve(context.Background(), cfg, zaptest.NewLogger(t), opts, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestRunResolveMissingLocatorFile(t *testing.T) {
	cfg, _ := writeTestAssets(t)

	opts := resolveOptions{URL: "https://example.test", LocatorsFile: "does-not-exist.yaml"}
	err := runResolve(context.Background(), cfg, zaptest.NewLogger(t), opts, nil)
	require.Error(t, err)
}

func TestOpenStoreUnsupportedType(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Type = "carrier-pigeon"

	_, err := openStore(context.Background(), &cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store type")
}
