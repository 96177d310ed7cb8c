// Package app wires the registry, dynamic loader, worker pool, process
// monitor, session store, memory manager, poll manager, and message
// handler into one running process, and owns the cooperative shutdown
// sequence described in spec.md §5.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/convoyrt/convoy/internal/channelsvc/telegram"
	"github.com/convoyrt/convoy/internal/channelsvc/whatsapp"
	"github.com/convoyrt/convoy/internal/channelsvc/wsgateway"
	"github.com/convoyrt/convoy/internal/config"
	"github.com/convoyrt/convoy/internal/debounce"
	"github.com/convoyrt/convoy/internal/handler"
	"github.com/convoyrt/convoy/internal/heartbeat"
	"github.com/convoyrt/convoy/internal/memory"
	"github.com/convoyrt/convoy/internal/plugins"
	"github.com/convoyrt/convoy/internal/polls"
	"github.com/convoyrt/convoy/internal/providers/anthropic"
	"github.com/convoyrt/convoy/internal/providers/openai"
	"github.com/convoyrt/convoy/internal/ratelimit"
	"github.com/convoyrt/convoy/internal/registry"
	"github.com/convoyrt/convoy/internal/sessions"
	filestool "github.com/convoyrt/convoy/internal/tools/files"
	memorytool "github.com/convoyrt/convoy/internal/tools/memory"
	"github.com/convoyrt/convoy/internal/typing"
	"github.com/convoyrt/convoy/internal/workerpool"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// builtinPlugins are the in-process plugin implementations convoy ships
// with; a "plugins" config entry matching one of these names is resolved
// here rather than through the dynamic shared-library loader.
var builtinPlugins = map[string]func() plugins.Plugin{
	"anthropic": func() plugins.Plugin { return anthropic.New() },
	"openai":    func() plugins.Plugin { return openai.New() },
	"telegram":  func() plugins.Plugin { return telegram.New() },
	"wsgateway": func() plugins.Plugin { return wsgateway.New() },
	"whatsapp":  func() plugins.Plugin { return whatsapp.New() },
}

// builtinSkills maps "/skill_name args" slash commands directly onto the
// memory and files tools' actions, bypassing the model for the handful of
// capabilities users invoke explicitly rather than through agent reasoning.
func builtinSkills() []handler.SkillSpec {
	return []handler.SkillSpec{
		{Name: "memory_save", ToolID: "memory", Action: "save"},
		{Name: "task_create", ToolID: "memory", Action: "task_create"},
		{Name: "task_list", ToolID: "memory", Action: "task_list"},
		{Name: "file_read", ToolID: "files", Action: "read"},
	}
}

const (
	defaultWorkerCount     = 8
	defaultQueueSize       = 256
	defaultHeartbeatTickS  = 5
	defaultDebounceWindow  = 5 * time.Second
	defaultMemorySearchMax = 10
	defaultRateLimitMax    = 20
	defaultRateLimitWindow = 10_000 // ms
	defaultPollSchedule    = "@every 5s"
)

// App is one fully-wired running instance: every long-lived subsystem plus
// the glue between them. Callers construct one with New and drive its
// lifecycle with Run.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry  *registry.Registry
	loader    *plugins.Loader
	pool      *workerpool.Pool
	monitor   *heartbeat.Monitor
	typing    *typing.Indicator
	sessions  *sessions.Store
	memory    *memory.Manager
	memStore  *memory.Store
	polls     *polls.Manager
	debouncer *debounce.Debouncer
	limiter   *ratelimit.KeyedLimiter
	handler   *handler.Handler
	cronSched *cron.Cron

	appName    string
	appVersion string

	mu      sync.Mutex
	started bool
}

// New constructs an App from cfg without starting anything. Callers must
// call Run to bring plugins and the worker pool up.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	workspaceDir := cfg.String("workspace_dir", ".")
	memDBPath := cfg.String("memory_db_path", filepath.Join(workspaceDir, ".openclaw", "memory.db"))

	memStore, err := memory.Open(memDBPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	chunkCfg := memory.DefaultChunkingConfig()
	if v := cfg.Int("memory_chunk_tokens", 0); v > 0 {
		chunkCfg.TargetTokens = int(v)
	}
	if v := cfg.Int("memory_chunk_overlap", 0); v > 0 {
		chunkCfg.OverlapTokens = int(v)
	}

	memMgr := memory.NewManager(memStore, memory.ManagerConfig{
		WorkspaceRoot:   workspaceDir,
		IncludeSessions: true,
		Chunking:        chunkCfg,
		CitationMode:    memory.CitationAuto,
		CitationChatTypes: []convoymodel.ChatType{
			convoymodel.ChatDirect,
		},
	})

	reg := registry.New(logger)
	reg.RegisterPlugin(memorytool.New(memMgr, nil))
	reg.RegisterPlugin(filestool.New(workspaceDir))
	loader := plugins.NewLoader(searchDirs(cfg), cfg.String("bot.app_name", "convoy"))
	pool := workerpool.New(defaultWorkerCount, defaultQueueSize, logger)
	ind := typing.New()
	mon := heartbeat.New(defaultHeartbeatTickS*time.Second, typingEmitter(ind, reg))
	sessionStore := sessions.NewStore(sessions.DefaultMaxHistory)
	pollMgr := polls.NewManager(nil)
	deb := debounce.New(defaultDebounceWindow)
	rateMax := cfg.Int("rate_limit_max", defaultRateLimitMax)
	rateWindowMs := cfg.Int("rate_limit_window_ms", defaultRateLimitWindow)
	limiter := ratelimit.NewKeyedSlidingWindowLimiter(int(rateMax), rateWindowMs)

	a := &App{
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		loader:     loader,
		pool:       pool,
		monitor:    mon,
		typing:     ind,
		sessions:   sessionStore,
		memory:     memMgr,
		memStore:   memStore,
		polls:      pollMgr,
		debouncer:  deb,
		limiter:    limiter,
		appName:    cfg.String("bot.app_name", "convoy"),
		appVersion: cfg.String("bot.app_version", "dev"),
	}

	a.registerBuiltinCommands()
	a.handler = handler.New(handler.Config{
		Sessions:       sessionStore,
		Debouncer:      deb,
		Commands:       reg,
		Skills:         builtinSkills(),
		Tools:          reg,
		Agent:          newAgentRunner(reg, mon),
		Channels:       reg,
		SystemPrompt:   cfg.String("bot.system_prompt", ""),
		DefaultAgentID: cfg.String("bot.app_name", "default"),
	})

	a.cronSched = cron.New()
	pollSchedule := cfg.String("poll_schedule", defaultPollSchedule)
	if _, err := a.cronSched.AddFunc(pollSchedule, func() { a.PollChannels(context.Background()) }); err != nil {
		logger.Warn("invalid poll_schedule, cooperative polling disabled", "schedule", pollSchedule, "error", err)
	}

	return a, nil
}

// searchDirs resolves the dynamic loader's plugins_dir config key into a
// search-directory list; empty config falls back to the current directory.
func searchDirs(cfg *config.Config) []string {
	dir := cfg.String("plugins_dir", "")
	if dir == "" {
		return nil
	}
	return []string{dir}
}

// typingEmitter adapts the heartbeat monitor's EmitFunc to the typing
// indicator: each due target id is treated as a chat id and checked with
// ShouldSendTyping, and StartTyping is called only when that check passes.
// No channel or plugin is sent a typing signal; reg is not used.
func typingEmitter(ind *typing.Indicator, reg *registry.Registry) heartbeat.EmitFunc {
	return func(targetID string) {
		if !ind.ShouldSendTyping(targetID) {
			return
		}
		ind.StartTyping(targetID)
	}
}

// LoadConfiguredPlugins resolves cfg's "plugins" entries: a name matching
// one of convoy's built-in implementations is constructed in-process;
// anything else is resolved through the dynamic shared-library loader.
func (a *App) LoadConfiguredPlugins() error {
	var firstErr error
	for _, entry := range a.cfg.Plugins() {
		if !entry.Enabled {
			continue
		}
		if factory, ok := builtinPlugins[entry.Name]; ok {
			a.registry.RegisterPlugin(factory())
			continue
		}
		inst, _, err := a.loader.Load(entry.Name)
		if err != nil {
			a.logger.Error("plugin load failed", "plugin", entry.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.registry.RegisterPlugin(inst)
	}
	return firstErr
}

func (a *App) registerBuiltinCommands() {
	a.registry.RegisterCommand("info", "Show bot identity", func(ctx context.Context, msg *convoymodel.Message, args string) (string, error) {
		return fmt.Sprintf("%s %s", a.appName, a.appVersion), nil
	})
	a.registry.RegisterCommand("ping", "Health check", func(ctx context.Context, msg *convoymodel.Message, args string) (string, error) {
		return "pong", nil
	})
	a.registry.RegisterCommand("memory_search", "Search persistent memory", func(ctx context.Context, msg *convoymodel.Message, args string) (string, error) {
		results, err := a.memory.Search(ctx, args, defaultMemorySearchMax, msg.ChatType)
		if err != nil {
			return "", err
		}
		if len(results) == 0 {
			return "No matches.", nil
		}
		out := ""
		for _, r := range results {
			out += r.Snippet
			if r.Citation != "" {
				out += " (" + r.Citation + ")"
			}
			out += "\n"
		}
		return out, nil
	})
	a.registry.RegisterCommand("poll", "Create a poll: /poll question | option1 | option2 ...", func(ctx context.Context, msg *convoymodel.Message, args string) (string, error) {
		input, err := parsePollArgs(args)
		if err != nil {
			return "", err
		}
		p, err := a.polls.CreatePoll(input, polls.DefaultNormalizeOptions())
		if err != nil {
			return "", err
		}
		return polls.FormatPoll(p) + "\nid: " + p.ID, nil
	})
	a.registry.RegisterCommand("vote", "Cast a vote: /vote poll_id option_index", func(ctx context.Context, msg *convoymodel.Message, args string) (string, error) {
		pollID, idx, err := parseVoteArgs(args)
		if err != nil {
			return "", err
		}
		if err := a.polls.Vote(pollID, msg.FromID, []int{idx}); err != nil {
			return "", err
		}
		results, err := a.polls.GetResults(pollID)
		if err != nil {
			return "", err
		}
		p, _ := a.polls.GetPoll(pollID)
		return polls.FormatResults(p, results), nil
	})
}

func parsePollArgs(args string) (polls.Input, error) {
	parts := splitPipe(args)
	if len(parts) < 3 {
		return polls.Input{}, fmt.Errorf("usage: /poll question | option1 | option2 [| ...]")
	}
	return polls.Input{Question: parts[0], Options: parts[1:]}, nil
}

func parseVoteArgs(args string) (pollID string, optionIndex int, err error) {
	parts := splitFields(args)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("usage: /vote poll_id option_index")
	}
	idx, convErr := strconv.Atoi(parts[1])
	if convErr != nil {
		return "", 0, fmt.Errorf("option_index must be a number")
	}
	return parts[0], idx, nil
}

// Run loads configured plugins, initializes and starts them, launches the
// worker pool's consumers of inbound messages, and blocks until ctx is
// cancelled, after which it runs the cooperative shutdown sequence.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("app already started")
	}
	a.started = true
	a.mu.Unlock()

	if err := a.LoadConfiguredPlugins(); err != nil {
		a.logger.Warn("one or more plugins failed to load", "error", err)
	}
	if err := a.registry.InitAll(a.cfg.Root()); err != nil {
		a.logger.Warn("one or more plugins failed to init", "error", err)
	}

	a.wireChannelCallbacks()

	if err := a.registry.StartAllChannels(ctx); err != nil {
		a.logger.Warn("one or more channels failed to start", "error", err)
	}
	a.monitor.Start()
	a.cronSched.Start()

	<-ctx.Done()
	a.logger.Info("shutdown signal received, beginning cooperative shutdown")
	return a.Shutdown()
}

// wireChannelCallbacks registers each channel's OnNewMessage callback to
// enqueue a handler.Handle call on the worker pool, per spec.md §4.8's data
// flow: transport plugin → inbound callback → pool task → handler. Each
// inbound message is first checked against the per-sender rate limiter
// (the auxiliary surface spec.md §4.6 hangs off the same bus); a message
// that exceeds its sender's budget is dropped before it ever reaches the
// pool rather than silently queued behind it.
func (a *App) wireChannelCallbacks() {
	for _, entry := range a.cfg.Plugins() {
		ch, ok := a.registry.GetChannel(entry.Name)
		if !ok {
			continue
		}
		channel := ch
		ch.OnNewMessage(func(msg *convoymodel.Message) {
			if outcome := a.limiter.Check(msg.FromID); !outcome.Allowed {
				a.logger.Warn("message dropped by rate limiter", "sender", msg.FromID, "retry_after_ms", outcome.RetryAfterMs)
				_ = channel.SendMessage(context.Background(), msg.FromID, "You're sending messages too quickly, please slow down.", "")
				return
			}
			a.pool.Enqueue(func() {
				a.handler.Handle(context.Background(), msg)
			})
		})
	}
}

// PollChannels invokes every channel and poller plugin's cooperative Poll
// once. Run drives this automatically on the poll_schedule cron expression
// (default "@every 5s"); callers that need an out-of-band cycle (e.g. tests)
// may still call it directly.
func (a *App) PollChannels(ctx context.Context) {
	a.registry.PollAll(ctx)
}

// Shutdown runs the cooperative shutdown sequence in the order spec.md §5
// names: stop channels, shut down plugins in reverse registration order,
// stop the monitor, drain and join the worker pool, unload dynamic
// libraries, close the memory store.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var firstErr error
	if err := a.registry.StopAllChannels(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.registry.ShutdownAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	cronDone := a.cronSched.Stop()
	select {
	case <-cronDone.Done():
	case <-ctx.Done():
		a.logger.Warn("cron scheduler did not drain in time")
	}
	a.monitor.Stop()
	a.pool.Shutdown()
	if err := a.loader.UnloadAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.memStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Registry exposes the underlying registry for tests and callers that need
// to register in-process (non-dynamically-loaded) plugins before Run.
func (a *App) Registry() *registry.Registry { return a.registry }

// Sessions exposes the session store.
func (a *App) Sessions() *sessions.Store { return a.sessions }

// Memory exposes the memory manager.
func (a *App) Memory() *memory.Manager { return a.memory }

// Polls exposes the poll manager.
func (a *App) Polls() *polls.Manager { return a.polls }
