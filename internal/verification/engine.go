// Package verification scores the result of a subtask execution with a set
// of independent checks.
package verification

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/exec"
	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const (
	DefaultThreshold         = 70
	DefaultMaxLintErrors     = 10
	DefaultMaxSecurityIssues = 0
	DefaultTestTimeout       = 60 * time.Second
	DefaultLintTimeout       = 30 * time.Second
)

// Check is one scored judgment of an execution result.
type Check interface {
	Name() models.CheckName
	// Applies reports whether the check runs for this kind of result.
	Applies(res *models.ExecutionResult) bool
	// Run never fails; problems with the check itself lower its score.
	Run(ctx context.Context, st models.Subtask, res *models.ExecutionResult) models.CheckResult
}

// FileReader reads generated files back from the workspace.
type FileReader interface {
	ReadFile(rel string) (string, error)
}

// SecurityAnalyzer is an optional static analyzer that replaces the
// built-in pattern scan.
type SecurityAnalyzer interface {
	Analyze(ctx context.Context, path, content string) ([]models.Issue, error)
}

// Config holds thresholds and per-check toggles.
type Config struct {
	// Threshold is the minimum aggregate score that passes.
	Threshold int
	// Disabled checks never run.
	Disabled          []models.CheckName
	MaxLintErrors     int
	MaxSecurityIssues int
	// TestCommand is run by the tests check. Test subtasks rerun their own
	// command instead.
	TestCommand string
	// LintCommand must print eslint or golangci-lint JSON. Empty skips linting.
	LintCommand string
	TestTimeout time.Duration
	LintTimeout time.Duration
	// Exclude holds doublestar globs of files the syntax and security checks
	// ignore.
	Exclude []string
}

// DefaultConfig returns the default thresholds with every check enabled.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		MaxLintErrors:     DefaultMaxLintErrors,
		MaxSecurityIssues: DefaultMaxSecurityIssues,
		TestCommand:       "npm test",
		TestTimeout:       DefaultTestTimeout,
		LintTimeout:       DefaultLintTimeout,
	}
}

// Deps are the collaborators checks use. Analyzer is optional.
type Deps struct {
	Runner   exec.CommandRunner
	LLM      llm.Completer
	Files    FileReader
	Analyzer SecurityAnalyzer
	Logger   *zap.Logger
}

// Engine runs the enabled checks in order and aggregates their scores.
type Engine struct {
	cfg    Config
	checks []Check
	logger *zap.Logger
}

// New creates an engine with the built-in checks.
func New(cfg Config, deps Deps) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = DefaultTestTimeout
	}
	if cfg.LintTimeout <= 0 {
		cfg.LintTimeout = DefaultLintTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	all := []Check{
		&SyntaxCheck{files: deps.Files, exclude: cfg.Exclude},
		&TestsCheck{runner: deps.Runner, command: cfg.TestCommand, timeout: cfg.TestTimeout},
		&LintCheck{runner: deps.Runner, command: cfg.LintCommand, timeout: cfg.LintTimeout, maxErrors: cfg.MaxLintErrors},
		&SecurityCheck{files: deps.Files, analyzer: deps.Analyzer, exclude: cfg.Exclude, maxIssues: cfg.MaxSecurityIssues},
		&CriteriaCheck{llm: deps.LLM, logger: deps.Logger},
		&DocumentationCheck{files: deps.Files},
	}
	disabled := make(map[models.CheckName]bool, len(cfg.Disabled))
	for _, name := range cfg.Disabled {
		disabled[name] = true
	}
	e := &Engine{cfg: cfg, logger: deps.Logger}
	for _, c := range all {
		if !disabled[c.Name()] {
			e.checks = append(e.checks, c)
		}
	}
	return e
}

// NewWithChecks creates an engine that runs exactly the given checks.
func NewWithChecks(threshold int, logger *zap.Logger, checks ...Check) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: Config{Threshold: threshold}, checks: checks, logger: logger}
}

// Threshold returns the passing score.
func (e *Engine) Threshold() int {
	return e.cfg.Threshold
}

// Verify runs every applicable check against res.
func (e *Engine) Verify(ctx context.Context, st models.Subtask, res *models.ExecutionResult) *models.VerificationResult {
	if res == nil {
		res = &models.ExecutionResult{Type: st.Type}
	}
	var checks []models.CheckResult
	for _, c := range e.checks {
		if !c.Applies(res) {
			continue
		}
		cr := c.Run(ctx, st, res)
		cr.Name = c.Name()
		for i := range cr.Issues {
			cr.Issues[i].Check = c.Name()
		}
		e.logger.Debug("check finished",
			zap.String("subtask", st.ID),
			zap.String("check", string(cr.Name)),
			zap.Bool("passed", cr.Passed),
			zap.Bool("skipped", cr.Skipped),
			zap.Int("score", cr.Score))
		checks = append(checks, cr)
	}

	result := Aggregate(checks, e.cfg.Threshold)
	result.SubtaskID = st.ID
	e.logger.Info("verification finished",
		zap.String("subtask", st.ID),
		zap.Int("score", result.Score),
		zap.Bool("passed", result.Passed),
		zap.Int("issues", len(result.Issues)))
	return result
}

// Aggregate scores checks: the rounded mean of checks that ran, passing at
// threshold. Issues from all checks are merged, most severe first. With no
// scored checks the result passes at 100.
func Aggregate(checks []models.CheckResult, threshold int) *models.VerificationResult {
	r := &models.VerificationResult{Checks: checks, Threshold: threshold}

	var sum, n int
	for _, c := range checks {
		r.Issues = append(r.Issues, c.Issues...)
		if c.Skipped {
			continue
		}
		sum += c.Score
		n++
	}
	if n == 0 {
		r.Score = 100
	} else {
		r.Score = int(math.Round(float64(sum) / float64(n)))
	}
	r.Passed = r.Score >= threshold
	models.SortIssues(r.Issues)
	return r
}

// contentOf returns the generated content of f, reading it back when the
// result did not carry it.
func contentOf(files FileReader, f models.GeneratedFile) (string, error) {
	if f.Content != "" || files == nil {
		return f.Content, nil
	}
	return files.ReadFile(f.Path)
}
