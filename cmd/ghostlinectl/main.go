// Command ghostlinectl is a CLI driver over WorkflowOrchestrator/TaskRunner
// implementing spec section 6's minimal start/resume/get_state wire surface.
// Grounded on the teacher's examples/*/main.go idiom (plain main + flag
// parsing, no framework) and examples/human_in_the_loop/main.go for the
// pause-then-resume interaction shape.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/ghostline-hq/ghostline/agents"
	"github.com/ghostline-hq/ghostline/config"
	"github.com/ghostline-hq/ghostline/costledger"
	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/enginelite"
	"github.com/ghostline-hq/ghostline/logging"
	"github.com/ghostline-hq/ghostline/modelclient"
	"github.com/ghostline-hq/ghostline/persistence/postgres"
	"github.com/ghostline-hq/ghostline/safety"
	"github.com/ghostline-hq/ghostline/subgraph/chapter"
	"github.com/ghostline-hq/ghostline/subgraph/outline"
	"github.com/ghostline-hq/ghostline/taskqueue"
	"github.com/ghostline-hq/ghostline/taskrunner"
	"github.com/ghostline-hq/ghostline/workflow"
)

// Exit codes per spec section 6.
const (
	exitSuccess              = 0
	exitGenericFailure       = 1
	exitQualityGateFailure   = 2
	exitAgentProviderFailure = 3
	exitCancelled            = 4
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitGenericFailure)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "resume":
		err = runResume(os.Args[2:])
	case "get-state":
		err = runGetState(os.Args[2:])
	case "cancel":
		err = runCancel(os.Args[2:])
	default:
		usage()
		os.Exit(exitGenericFailure)
	}

	if err == nil {
		os.Exit(exitSuccess)
	}
	fmt.Fprintln(os.Stderr, styleError.Render("error: ")+err.Error())
	os.Exit(exitCodeFor(err))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ghostlinectl <start|resume|get-state|cancel> [flags]")
}

// errWorkflowCancelled is returned by runStart/runResume when the task
// they just ran turns out cancelled (observed cooperatively between
// nodes, per spec section 4's "raise, leaving state at the last
// checkpoint" contract), so main can select exit code 4.
var errWorkflowCancelled = errors.New("workflow was cancelled")

func exitCodeFor(err error) int {
	switch {
	case workflow.IsQualityGateFailure(err):
		return exitQualityGateFailure
	case errors.Is(err, errWorkflowCancelled):
		return exitCancelled
	case isStrictModeFailure(err):
		return exitAgentProviderFailure
	default:
		return exitGenericFailure
	}
}

func isStrictModeFailure(err error) bool {
	return strings.Contains(err.Error(), "strict mode")
}

// runtime bundles every collaborator a command needs, built once from the
// environment per invocation.
type runtime struct {
	orchestrator *workflow.Orchestrator
	runner       *taskrunner.Runner
	checkpoints  enginelite.CheckpointStore
	tasks        *postgres.TaskStore
	queue        *taskqueue.Queue
	log          logging.Logger
}

func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, func(), error) {
	log := logging.NewDefault()

	dsn := os.Getenv("GHOSTLINE_DATABASE_URL")
	if dsn == "" {
		return nil, nil, fmt.Errorf("GHOSTLINE_DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	checkpoints := postgres.NewWithPool(pool)
	if err := checkpoints.InitSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("init workflow_checkpoints schema: %w", err)
	}

	tasks := postgres.NewTaskStore(pool)
	if err := tasks.InitSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("init generation_tasks schema: %w", err)
	}

	ledgerStore := postgres.NewCallLogStore(pool)
	if err := ledgerStore.InitSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("init llm_usage_logs schema: %w", err)
	}
	ledger := costledger.New(ledgerStore, log)

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		return nil, nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	anthropicModel := stringOrDefault(os.Getenv("ANTHROPIC_MODEL"), "claude-sonnet-4-20250514")
	chat, err := anthropic.New(anthropic.WithToken(anthropicKey), anthropic.WithModel(anthropicModel))
	if err != nil {
		return nil, nil, fmt.Errorf("construct anthropic client: %w", err)
	}
	primary := modelclient.NewLangchainProvider("anthropic", anthropicModel, chat)

	var fallback modelclient.Provider
	if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
		fallback = modelclient.NewOpenAIProvider(cfg.OpenAIFallbackModel, openai.NewClient(openaiKey))
	}

	agentFor := func(role agents.Role) *agents.Agent {
		client := modelclient.New(modelclient.Config{
			Primary:       primary,
			Fallback:      fallback,
			AllowFallback: cfg.AllowLLMFallback,
			StrictMode:    cfg.StrictMode,
			Ledger:        ledger,
			Logger:        log,
			AgentName:     string(role),
			AgentRole:     string(role),
		})
		return agents.New(role, client)
	}

	outlineSG := outline.New(agentFor(agents.RoleOutlinePlanner), agentFor(agents.RoleOutlineCritic), outline.DefaultBounds(), log)
	chapterSG := chapter.New(
		agentFor(agents.RoleContentDrafter),
		agentFor(agents.RoleVoiceEditor),
		agentFor(agents.RoleFactChecker),
		agentFor(agents.RoleCohesionAnalyst),
		nil,
		chapter.DefaultThresholds(),
		chapter.DefaultBounds(),
		log,
	)
	screener := safety.New(cfg.StrictMode)

	// retrieval.Retriever needs a retrieval.VectorStore backed by the
	// content_chunks table this module doesn't own (see DESIGN.md's
	// persistence-scope decision); a standalone CLI invocation drafts
	// without retrieved source chunks until a host application supplies one.
	orchestrator := workflow.New(outlineSG, chapterSG, nil, screener, nil, cfg.StrictMode, log)

	var queue *taskqueue.Queue
	if addr := os.Getenv("GHOSTLINE_REDIS_ADDR"); addr != "" {
		queue = taskqueue.New(taskqueue.Options{Addr: addr})
	}

	runner := taskrunner.New(orchestrator, checkpoints, tasks, log)

	cleanup := func() {
		checkpoints.Close()
		if queue != nil {
			queue.Close()
		}
	}
	return &runtime{
		orchestrator: orchestrator,
		runner:       runner,
		checkpoints:  checkpoints,
		tasks:        tasks,
		queue:        queue,
		log:          log,
	}, cleanup, nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	projectID := fs.String("project", "", "project id")
	title := fs.String("title", "", "working title")
	description := fs.String("description", "", "one-paragraph description")
	targetChapters := fs.Int("chapters", 3, "target chapter count")
	targetPages := fs.Int("pages", 0, "target page count (alternative to -chapters)")
	wordsPerPage := fs.Int("words-per-page", 250, "words per page, used with -pages")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectID == "" || *title == "" {
		return fmt.Errorf("-project and -title are required")
	}

	cfg := config.Load()
	ctx := context.Background()
	rt, cleanup, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	targetWordsPerChapter := 0
	if *targetPages > 0 && *targetChapters > 0 {
		targetWordsPerChapter = (*targetPages * *wordsPerPage) / *targetChapters
	}

	workflowID := uuid.NewString()
	task, err := rt.runner.Enqueue(ctx, workflowID, *projectID)
	if err != nil {
		return err
	}

	if rt.queue != nil {
		if lockErr := rt.queue.Lock(ctx, workflowID, "ghostlinectl"); lockErr != nil {
			return fmt.Errorf("acquire workflow lock: %w", lockErr)
		}
		defer rt.queue.Unlock(ctx, workflowID)
	}

	state := &domain.WorkflowState{
		WorkflowID:            workflowID,
		ProjectID:             *projectID,
		Title:                 *title,
		Description:           *description,
		TargetChapters:        *targetChapters,
		TargetWordsPerChapter: targetWordsPerChapter,
		CreatedAt:             time.Now(),
	}

	result, runErr := rt.runner.Start(ctx, task.ID, state)
	printState(result)
	if runErr != nil {
		return runErr
	}
	return checkCancelled(ctx, rt, task.ID)
}

func runResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	workflowID := fs.String("workflow-id", "", "workflow id to resume")
	taskID := fs.String("task-id", "", "task id tracking this workflow")
	approve := fs.Bool("approve", false, "approve the pending outline")
	feedback := fs.String("feedback", "", "comma-separated revision feedback")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workflowID == "" || *taskID == "" {
		return fmt.Errorf("-workflow-id and -task-id are required")
	}

	cfg := config.Load()
	ctx := context.Background()
	rt, cleanup, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	cp, err := rt.checkpoints.LoadLatest(ctx, *workflowID)
	if err != nil {
		return fmt.Errorf("load workflow state: %w", err)
	}
	if cp == nil {
		return fmt.Errorf("no checkpoint found for workflow %s", *workflowID)
	}
	var state domain.WorkflowState
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return fmt.Errorf("decode workflow state: %w", err)
	}

	if rt.queue != nil {
		if lockErr := rt.queue.Lock(ctx, *workflowID, "ghostlinectl"); lockErr != nil {
			return fmt.Errorf("acquire workflow lock: %w", lockErr)
		}
		defer rt.queue.Unlock(ctx, *workflowID)
	}

	var feedbackItems []string
	if *feedback != "" {
		feedbackItems = strings.Split(*feedback, ",")
	}

	result, runErr := rt.runner.Resume(ctx, *taskID, &state, *approve, feedbackItems)
	printState(result)
	if runErr != nil {
		return runErr
	}
	return checkCancelled(ctx, rt, *taskID)
}

func checkCancelled(ctx context.Context, rt *runtime, taskID string) error {
	task, err := rt.tasks.Get(ctx, taskID)
	if err != nil || task == nil {
		return nil
	}
	if task.Status == domain.TaskCancelled {
		return errWorkflowCancelled
	}
	return nil
}

func runCancel(args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	taskID := fs.String("task-id", "", "task id to cancel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" {
		return fmt.Errorf("-task-id is required")
	}

	cfg := config.Load()
	ctx := context.Background()
	rt, cleanup, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := rt.runner.Cancel(ctx, *taskID); err != nil {
		return err
	}
	fmt.Println(styleWarning.Render("task " + *taskID + " cancelled"))
	return nil
}

func runGetState(args []string) error {
	fs := flag.NewFlagSet("get-state", flag.ExitOnError)
	workflowID := fs.String("workflow-id", "", "workflow id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workflowID == "" {
		return fmt.Errorf("-workflow-id is required")
	}

	cfg := config.Load()
	ctx := context.Background()
	rt, cleanup, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	cp, err := rt.checkpoints.LoadLatest(ctx, *workflowID)
	if err != nil {
		return fmt.Errorf("load workflow state: %w", err)
	}
	if cp == nil {
		return fmt.Errorf("no checkpoint found for workflow %s", *workflowID)
	}
	var state domain.WorkflowState
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return fmt.Errorf("decode workflow state: %w", err)
	}
	printState(&state)
	return nil
}

func printState(state *domain.WorkflowState) {
	if state == nil {
		return
	}
	fmt.Println(styleHeading.Render(fmt.Sprintf("workflow %s", state.WorkflowID)))
	fmt.Println(styleLabel.Render("phase:    ") + statusStyle(string(state.Phase)).Render(string(state.Phase)))
	fmt.Println(styleLabel.Render("progress: ") + progressBar(state.Progress, 30) + fmt.Sprintf(" %d%%", state.Progress))
	if state.PendingUserAction != "" {
		fmt.Println(styleLabel.Render("pending:  ") + styleWarning.Render(state.PendingUserAction))
	}
	fmt.Println(styleLabel.Render("chapters: ") + fmt.Sprintf("%d", len(state.Chapters)))
	if state.Error != "" {
		fmt.Println(styleLabel.Render("error:    ") + styleError.Render(state.Error))
	}
}

func stringOrDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
