package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/internal/orchestrator"
	"github.com/ShayCichocki/autopilot/internal/signals"
	"github.com/ShayCichocki/autopilot/internal/tui"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

var (
	runTUI            bool
	runJSON           bool
	runPlanFile       string
	runContext        map[string]string
	runMaxCorrections int
	runNoPause        bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Plan, execute and verify a task",
	Long: `Run decomposes the task into subtasks, executes them in dependency order
and verifies each result. Subtasks scoring below the verification threshold
are corrected automatically.

Control a running session from another terminal with 'autopilot pause',
'autopilot resume' and 'autopilot cancel', or with p, r and c in the TUI.

Use --plan to execute a plan saved with 'autopilot plan --format json'.`,
	RunE: runTask,
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the interactive progress view")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the session result as JSON")
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "Execute a saved JSON plan instead of planning")
	runCmd.Flags().StringToStringVar(&runContext, "context", nil, "Task context passed to the planner and handlers (key=value)")
	runCmd.Flags().IntVar(&runMaxCorrections, "max-corrections", -1, "Override orchestrator.max_auto_corrections")
	runCmd.Flags().BoolVar(&runNoPause, "no-pause", false, "Continue after a subtask fails verification")
}

func runTask(cmd *cobra.Command, args []string) error {
	task := strings.TrimSpace(strings.Join(args, " "))

	var plan *models.Plan
	if runPlanFile != "" {
		p, err := loadPlan(runPlanFile)
		if err != nil {
			return err
		}
		plan = p
		if task == "" {
			task = plan.TaskDescription
		}
	}
	if task == "" {
		return errors.New("a task description or --plan is required")
	}

	if runMaxCorrections >= 0 {
		cfg.Orchestrator.MaxAutoCorrections = runMaxCorrections
	}
	if runNoPause {
		cfg.Orchestrator.PauseOnVerificationFailure = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	useTUI := runTUI && term.IsTerminal(int(os.Stdout.Fd()))
	var (
		sink    events.Sink
		emitter *events.ChannelEmitter
	)
	if useTUI {
		emitter = events.NewChannelEmitter(cfg.Orchestrator.EventBuffer, nil)
		sink = emitter
	} else if !runJSON {
		sink = newPrinter(cmd.OutOrStdout())
	}

	rt, err := newRuntime(ctx, runtimeOptions{console: verbose && !useTUI, sink: sink})
	if err != nil {
		return err
	}
	defer rt.Close()

	watcher, err := signals.NewWatcher(projectDir, rt.logger)
	if err != nil {
		rt.logger.Warn("signal files disabled", zap.Error(err))
	} else {
		defer watcher.Close()
		go watcher.Run(ctx, rt.orch)
	}

	taskCtx := taskContext(runContext)
	execute := func(ctx context.Context) (*models.SessionResult, error) {
		if plan != nil {
			return rt.orch.ExecutePlan(ctx, plan, taskCtx)
		}
		return rt.orch.ExecuteTask(ctx, task, taskCtx)
	}

	var result *models.SessionResult
	if useTUI {
		result, err = runWithTUI(ctx, rt.orch, emitter, task, execute)
	} else {
		result, err = execute(ctx)
	}

	in, out := rt.usage.Total()
	rt.logger.Info("llm usage", zap.Int("calls", rt.usage.Calls()), zap.Int64("input_tokens", in), zap.Int64("output_tokens", out))

	if runJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	} else {
		printSummary(cmd.OutOrStdout(), result)
	}

	if err != nil {
		return err
	}
	if result != nil && !result.Success {
		return errSessionFailed
	}
	return nil
}

// runWithTUI runs the session while the progress view owns the terminal.
// Quitting the view cancels a session that is still running.
func runWithTUI(ctx context.Context, orch *orchestrator.Orchestrator, emitter *events.ChannelEmitter, task string,
	execute func(context.Context) (*models.SessionResult, error)) (*models.SessionResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tui.NewProgram(tui.NewSessionApp(task, orch))
	go tui.Forward(program, emitter.Events())

	type outcome struct {
		result *models.SessionResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := execute(ctx)
		program.Send(tui.SessionDoneMsg{Result: r, Err: err})
		done <- outcome{r, err}
	}()

	_, tuiErr := program.Run()

	var o outcome
	select {
	case o = <-done:
	default:
		// Cancel fails before the session has started; the context still
		// stops it.
		_, _ = orch.Cancel()
		cancel()
		o = <-done
	}
	emitter.Close()
	if o.err == nil && tuiErr != nil {
		return o.result, fmt.Errorf("tui: %w", tuiErr)
	}
	return o.result, o.err
}

func loadPlan(path string) (*models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var plan models.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	if len(plan.Subtasks) == 0 {
		return nil, fmt.Errorf("plan %s has no subtasks", path)
	}
	return &plan, nil
}

// taskContext converts --context pairs to the map handlers receive.
func taskContext(pairs map[string]string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]any, len(pairs))
	for k, v := range pairs {
		out[k] = v
	}
	return out
}
