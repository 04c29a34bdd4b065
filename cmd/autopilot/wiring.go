package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/config"
	"github.com/ShayCichocki/autopilot/internal/dispatch"
	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/internal/exec"
	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/internal/logging"
	"github.com/ShayCichocki/autopilot/internal/memory"
	"github.com/ShayCichocki/autopilot/internal/metrics"
	"github.com/ShayCichocki/autopilot/internal/orchestrator"
	"github.com/ShayCichocki/autopilot/internal/planner"
	"github.com/ShayCichocki/autopilot/internal/research"
	"github.com/ShayCichocki/autopilot/internal/state"
	"github.com/ShayCichocki/autopilot/internal/verification"
	"github.com/ShayCichocki/autopilot/internal/workspace"
)

// runtimeOptions selects the outer surfaces of a session runtime.
type runtimeOptions struct {
	// console sends logs to stderr as well as the log file.
	console bool
	// sink receives lifecycle events in addition to metrics and NATS.
	sink events.Sink
}

// session holds every collaborator of a session, built from config.
type session struct {
	logger  *zap.Logger
	llm     llm.Completer
	usage   *llm.UsageTracker
	memory  *memory.Store
	state   *state.DB
	planner *planner.Planner
	orch    *orchestrator.Orchestrator

	closers []func()
}

// newLogger builds the project logger from cfg.
func newLogger(console bool) (*zap.Logger, error) {
	file := cfg.Logging.File
	switch file {
	case "":
		file = logging.DefaultFile(projectDir)
	case "-":
		file = ""
	default:
		file = config.ResolvePath(projectDir, file)
	}
	return logging.New(logging.Options{Level: cfg.Logging.Level, File: file, Console: console})
}

// newCompleter builds the configured LLM backend.
func newCompleter(ctx context.Context, logger *zap.Logger) (llm.Completer, *llm.UsageTracker, error) {
	llmCfg := cfg.LLMConfig()
	if config.NeedsAPIKey(cfg.LLM.Provider) {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%s provider: %w", cfg.LLM.Provider, err)
		}
		if err := config.ValidateAPIKey(cfg.LLM.Provider, key); err != nil {
			logger.Warn("api key looks malformed", zap.String("key", config.MaskAPIKey(key)), zap.Error(err))
		}
		llmCfg.APIKey = key
	}
	return llm.New(ctx, llmCfg, logger)
}

// openState opens and migrates the session database.
func openState(ctx context.Context) (*state.DB, error) {
	path := config.ResolvePath(projectDir, cfg.Storage.StatePath)
	if path == "" {
		path = state.ProjectDBPath(projectDir)
	}
	db, err := state.Open(path, state.WithDriver(cfg.Storage.Driver))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newRuntime wires the planner, dispatcher, verification engine, stores and
// event sinks into an orchestrator.
func newRuntime(ctx context.Context, opts runtimeOptions) (_ *session, err error) {
	rt := &session{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rt.logger, err = newLogger(opts.console)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = rt.logger.Sync() })

	rt.llm, rt.usage, err = newCompleter(ctx, rt.logger)
	if err != nil {
		return nil, err
	}

	memPath := config.ResolvePath(projectDir, cfg.Storage.MemoryPath)
	if memPath == "" {
		memPath = memory.DBPath(projectDir)
	}
	rt.memory, err = memory.Open(memPath)
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}
	rt.closers = append(rt.closers, func() { rt.memory.Close() })

	rt.state, err = openState(ctx)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	rt.closers = append(rt.closers, func() { rt.state.Close() })
	if stale, err := rt.state.RecoverInterrupted(ctx); err != nil {
		rt.logger.Warn("recover interrupted sessions", zap.Error(err))
	} else if len(stale) > 0 {
		rt.logger.Info("marked interrupted sessions", zap.Int("count", len(stale)))
	}

	sinks := []events.Sink{opts.sink}
	if cfg.Metrics.Addr != "" {
		m := metrics.New()
		sinks = append(sinks, m)
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, rt.logger); err != nil {
				rt.logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}
	if cfg.Events.NATSURL != "" {
		ns, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.NATSSubject, rt.logger)
		if err != nil {
			rt.logger.Warn("nats unavailable, events stay local", zap.Error(err))
		} else {
			sinks = append(sinks, ns)
			rt.closers = append(rt.closers, ns.Close)
		}
	}
	sink := events.Multi(sinks...)

	files, err := workspace.New(projectDir)
	if err != nil {
		return nil, err
	}
	runner := exec.NewRunner(projectDir)
	project := verification.DetectProject(projectDir)

	var researcher dispatch.Researcher
	if cfg.Research.Enabled {
		researcher = research.New(rt.memory,
			research.WithMaxResults(cfg.Research.MaxResults),
			research.WithFetchTimeout(cfg.Research.FetchTimeout),
			research.WithLogger(rt.logger),
		)
	}

	testCommand := firstNonEmpty(cfg.Execution.TestCommand, project.TestCommand)
	dispatcher := dispatch.New(
		dispatch.NewRegistry(dispatch.Deps{
			LLM:                rt.llm,
			Memory:             rt.memory,
			Researcher:         researcher,
			Runner:             runner,
			Files:              files,
			Logger:             rt.logger,
			TestTimeout:        cfg.Execution.TestTimeout,
			DeployTimeout:      cfg.Execution.DeployTimeout,
			DefaultTestCommand: testCommand,
		}),
		dispatch.WithMaxRetries(cfg.Execution.MaxRetries),
		dispatch.WithRetryDelay(cfg.Execution.RetryDelay),
		dispatch.WithSink(sink),
		dispatch.WithLogger(rt.logger),
	)

	verifier := verification.New(verification.Config{
		Threshold:         cfg.Verification.Threshold,
		Disabled:          cfg.Verification.Checks.DisabledChecks(),
		MaxLintErrors:     cfg.Verification.MaxLintErrors,
		MaxSecurityIssues: cfg.Verification.MaxSecurityIssues,
		TestCommand:       firstNonEmpty(cfg.Verification.TestCommand, testCommand),
		LintCommand:       firstNonEmpty(cfg.Verification.LintCommand, project.LintCommand),
		TestTimeout:       cfg.Execution.TestTimeout,
		Exclude:           cfg.Verification.SecurityExclude,
	}, verification.Deps{
		Runner: runner,
		LLM:    rt.llm,
		Files:  files,
		Logger: rt.logger,
	})

	rt.planner = planner.New(rt.llm, planner.WithLogger(rt.logger))

	rt.orch, err = orchestrator.New(
		orchestrator.RequiredConfig{Planner: rt.planner, Executor: dispatcher, Verifier: verifier},
		orchestrator.WithCompleter(rt.llm),
		orchestrator.WithMemory(rt.memory),
		orchestrator.WithStore(rt.state),
		orchestrator.WithSink(sink),
		orchestrator.WithLogger(rt.logger),
		orchestrator.WithMaxAutoCorrections(cfg.Orchestrator.MaxAutoCorrections),
		orchestrator.WithPauseOnVerificationFailure(cfg.Orchestrator.PauseOnVerificationFailure),
		orchestrator.WithCorrectionDelay(cfg.Orchestrator.CorrectionDelay),
	)
	if err != nil {
		return nil, err
	}

	rt.logger.Info("runtime ready",
		zap.String("project", projectDir),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.String("project_type", project.Type),
	)
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *session) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// errSessionFailed marks a session that finished without success so the
// process exits non-zero after the summary is printed.
var errSessionFailed = errors.New("session did not succeed")
