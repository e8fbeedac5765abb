package guest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caffeineduck/rvmhost/hostcap"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ErrRunnerClosed is returned for runs attempted after Close.
var ErrRunnerClosed = errors.New("runner closed")

// Result holds the output and metadata from one guest run.
type Result struct {
	Output   string
	Duration time.Duration
	Error    error
}

// Runner executes guest wasm modules and bridges their boundary calls into a
// broker. Each run gets its own handle, restricted to the run's granted
// categories and revoked when the run ends, so an abandoned guest can never
// keep capability alive.
type Runner struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	broker   *hostcap.Broker
	compiled map[string]wazero.CompiledModule
	log      zerolog.Logger
	mu       sync.RWMutex
	closed   bool
}

type runnerConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32
	log              zerolog.Logger
}

// RunnerOption configures the Runner at creation time.
type RunnerOption func(*runnerConfig)

// WithDiskCache enables a persistent compilation cache. Optionally provide a
// custom directory; otherwise ~/.cache/rvmhost or XDG_CACHE_HOME/rvmhost.
func WithDiskCache(dir ...string) RunnerOption {
	return func(c *runnerConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum guest memory in 64KB pages. Zero means the
// wazero default.
func WithMemoryLimit(pages uint32) RunnerOption {
	return func(c *runnerConfig) {
		c.memoryLimitPages = pages
	}
}

// WithLogger attaches a structured logger for run lifecycle events.
func WithLogger(log zerolog.Logger) RunnerOption {
	return func(c *runnerConfig) {
		c.log = log
	}
}

// New creates a Runner over the given broker.
func New(broker *hostcap.Broker, opts ...RunnerOption) (*Runner, error) {
	cfg := runnerConfig{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	return &Runner{
		runtime:  rt,
		cache:    cache,
		broker:   broker,
		compiled: make(map[string]wazero.CompiledModule),
		log:      cfg.log,
	}, nil
}

type runConfig struct {
	timeout time.Duration
	grants  hostcap.Category
	args    []string
	env     map[string]string
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: 30 * time.Second,
		env:     make(map[string]string),
	}
}

// Option configures a single run.
type Option func(*runConfig)

// WithTimeout sets the maximum run time. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithGrants sets the capability categories requested for the run's handle.
// The broker intersects them with what it is willing to grant.
func WithGrants(cats hostcap.Category) Option {
	return func(c *runConfig) {
		c.grants = cats
	}
}

// WithArgs sets the guest module's command-line arguments.
func WithArgs(args ...string) Option {
	return func(c *runConfig) {
		c.args = args
	}
}

// WithEnv sets an environment variable visible to the guest.
func WithEnv(key, value string) Option {
	return func(c *runConfig) {
		c.env[key] = value
	}
}

// Run executes a guest wasm module, dispatching its boundary calls through
// the broker under a scoped session. The per-run handle is revoked on every
// exit path.
func (r *Runner) Run(ctx context.Context, wasm []byte, opts ...Option) Result {
	start := time.Now()

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	compiled, err := r.getCompiled(ctx, wasm)
	if err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}

	handle, herr := r.broker.Issue(cfg.grants)
	if herr != nil {
		return Result{Error: herr, Duration: time.Since(start)}
	}
	defer r.broker.Revoke(handle)

	r.log.Info().Str("handle", handle.String()).Str("grants", cfg.grants.String()).Msg("guest run starting")

	session, herr := r.broker.Acquire(handle, hostcap.WithRelease(func(failure *hostcap.Error) {
		evt := r.log.Info().Str("handle", handle.String())
		if failure != nil {
			evt = evt.Str("failure", failure.Kind.String())
		}
		evt.Msg("guest session released")
	}))
	if herr != nil {
		return Result{Error: herr, Duration: time.Since(start)}
	}

	var stdout bytes.Buffer
	stdinReader, stdinWriter := io.Pipe()
	protocol := newProtocolHandler(ctx, session, stdinWriter, r.log)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(protocol).
		WithStdin(stdinReader).
		WithName("")
	if len(cfg.args) > 0 {
		moduleConfig = moduleConfig.WithArgs(cfg.args...)
	}
	for k, v := range cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := r.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		stdinWriter.Close()
		errCh <- err
	}()

	runErr := <-errCh

	// A clean exit releases with no failure context; a faulted run hands the
	// last boundary failure the guest saw to the release hook.
	if runErr != nil {
		session.Close(protocol.LastFailure())
	} else {
		session.Close(nil)
	}

	result := Result{
		Output:   stdout.String() + protocol.Stderr(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = fmt.Errorf("timeout after %v", cfg.timeout)
		} else {
			result.Error = fmt.Errorf("execution failed: %w", runErr)
		}
	}

	return result
}

// getCompiled returns a cached compiled module, compiling if necessary.
// Modules are keyed by content hash.
func (r *Runner) getCompiled(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	sum := sha256.Sum256(wasm)
	key := hex.EncodeToString(sum[:])

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRunnerClosed
	}
	if compiled, ok := r.compiled[key]; ok {
		r.mu.RUnlock()
		return compiled, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRunnerClosed
	}
	if compiled, ok := r.compiled[key]; ok {
		return compiled, nil
	}

	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}

	r.compiled[key] = compiled
	return compiled, nil
}

// Close releases all resources held by the Runner.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	ctx := context.Background()

	var errs []error
	if err := r.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "rvmhost")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "rvmhost")
	}
	return filepath.Join(os.TempDir(), "rvmhost-cache")
}
