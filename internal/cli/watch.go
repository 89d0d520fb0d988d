package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/pickboard/internal/collab"
	"github.com/roach88/pickboard/internal/config"
	"github.com/roach88/pickboard/internal/engine"
	"github.com/roach88/pickboard/internal/ir"
	"github.com/roach88/pickboard/internal/push"
	"github.com/roach88/pickboard/internal/store"
)

// errPushClosed ends a session when the server closes the push channel.
var errPushClosed = errors.New("push channel closed by server")

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	RetryDelay time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a list and act on its items",
		Long: `Mount a live view of one list and print a frame on every visible change.

Actions are read from standard input, one per line:
  pick <item>
  procure <item>
  substitute <item> <substitute name>
  reset <item>

Example:
  pickboard watch --server http://localhost:8080 --list L1
  pickboard watch --list L1 --fade-duration 100ms --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().String("server", "", "server base URL (default from config)")
	cmd.Flags().String("list", "", "list to watch (default from config)")
	cmd.Flags().Duration("suppression-window", 0, "how long a local action absorbs its push echo (default from config)")
	cmd.Flags().Duration("fade-duration", 0, "length of each animation phase (default from config)")
	cmd.Flags().DurationVar(&opts.RetryDelay, "retry-delay", time.Second, "pause before reloading after a failure")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	v := newViewer(cfg, newFormatter(opts.RootOptions, cmd), opts.RetryDelay)
	go v.readCommands(ctx, cmd.InOrStdin())

	if err := v.run(ctx); err != nil {
		return WrapExitError(ExitFailure, "viewer stopped", err)
	}
	return nil
}

// viewer owns one mounted view at a time. A reload tears the view down
// and mounts a fresh one from a new initial load.
type viewer struct {
	cfg     config.Config
	col     *collab.Client
	channel push.Channel
	out     *OutputFormatter
	retry   time.Duration

	mu    sync.Mutex
	eng   *engine.Engine
	ready chan struct{}
	once  sync.Once
}

func newViewer(cfg config.Config, out *OutputFormatter, retry time.Duration) *viewer {
	return &viewer{
		cfg:     cfg,
		col:     collab.New(cfg.Server, nil),
		channel: push.WebsocketChannel{BaseURL: cfg.Server},
		out:     out,
		retry:   retry,
		ready:   make(chan struct{}),
	}
}

// run mounts sessions until ctx is done.
func (v *viewer) run(ctx context.Context) error {
	for {
		reason, err := v.session(ctx)
		if err != nil {
			return err
		}
		if reason == nil {
			return nil
		}

		slog.Warn("reloading view", "list", v.cfg.List, "reason", reason)
		v.out.VerboseLog("reloading %s in %s: %v", v.cfg.List, v.retry, reason)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(v.retry):
		}
	}
}

// session mounts one view. It returns a reload reason when the view must
// be rebuilt, or nil for both when ctx is done.
func (v *viewer) session(ctx context.Context) (reload error, err error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reloads := make(chan error, 1)
	requestReload := func(reason error) {
		select {
		case reloads <- reason:
		default:
		}
	}

	eng := engine.New(v.col,
		engine.WithReloader(engine.ReloaderFunc(requestReload)),
		engine.WithSuppressionWindow(v.cfg.SuppressionWindow),
		engine.WithFade(v.cfg.FadeDuration),
		engine.WithPaintHook(func(f engine.Frame) {
			if err := v.out.Frame(f); err != nil {
				slog.Warn("failed to write frame", "error", err)
			}
		}),
	)

	// Subscribe before loading so no transition falls between the two.
	sub, err := v.channel.Subscribe(sctx, v.cfg.List)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", v.cfg.List, err)
	}
	frags, err := v.col.InitialLoad(sctx, v.cfg.List)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	eng.Mount(frags)
	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(sctx) }()

	pc := push.NewClient(push.WithFailureHandler(requestReload))
	pc.OnTransition(func(ev ir.TransitionEvent) {
		eng.ApplyRemoteTransition(ev)
	})
	go func() {
		if err := pc.Run(sctx, sub); err == nil && sctx.Err() == nil {
			requestReload(errPushClosed)
		}
	}()

	v.setEngine(eng)
	slog.Info("view mounted", "list", v.cfg.List, "items", len(frags), "session", eng.SessionID())

	select {
	case <-ctx.Done():
		eng.Unmount()
		<-runDone
		return nil, nil
	case reason := <-reloads:
		cancel()
		<-runDone
		return reason, nil
	}
}

func (v *viewer) setEngine(eng *engine.Engine) {
	v.mu.Lock()
	v.eng = eng
	v.mu.Unlock()
	v.once.Do(func() { close(v.ready) })
}

// current waits for the first mount and returns the live engine.
func (v *viewer) current(ctx context.Context) (*engine.Engine, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-v.ready:
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.eng, nil
}

// readCommands applies one action per input line until r is exhausted.
func (v *viewer) readCommands(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := v.act(ctx, line); err != nil {
			if ctx.Err() != nil {
				return
			}
			if werr := v.out.Error("E_ACTION", err.Error(), line); werr != nil {
				slog.Warn("failed to report action error", "error", werr, "action_error", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("stopped reading commands", "error", err)
	}
}

// act renders one action optimistically, sends it to the server and then
// reconciles the board with the confirmed result. The local apply comes
// first so its suppression record is in place before the server can
// broadcast the echo.
func (v *viewer) act(ctx context.Context, line string) error {
	itemID, req, err := parseCommand(line)
	if err != nil {
		return err
	}
	optimistic, err := optimisticEvent(v.cfg.List, itemID, req)
	if err != nil {
		return err
	}

	eng, err := v.current(ctx)
	if err != nil {
		return err
	}
	eng.ApplyLocalTransition(optimistic)

	res, err := v.col.Transition(ctx, v.cfg.List, itemID, req)
	if err != nil {
		// unknown items never reached the board
		if !errors.Is(err, collab.ErrNotFound) {
			eng.Refresh(v.cfg.List, itemID)
		}
		return err
	}
	eng.ConfirmLocalTransition(res.Event())
	slog.Debug("action confirmed", "item_id", itemID, "action", req.Action, "event_id", req.EventID)
	v.out.VerboseLog("%s %s confirmed (event %s)", req.Action, itemID, req.EventID)
	return nil
}

// optimisticEvent is the transition an action is expected to produce.
func optimisticEvent(listID, itemID string, req collab.TransitionRequest) (ir.TransitionEvent, error) {
	tag, err := store.Action(req.Action).Target()
	if err != nil {
		return ir.TransitionEvent{}, err
	}
	return ir.TransitionEvent{
		ItemID:         itemID,
		ListID:         listID,
		State:          tag,
		Flags:          ir.FlagsFor(tag),
		HasFlags:       true,
		SubstituteName: req.SubstituteName,
	}, nil
}

// parseCommand parses "<action> <item> [substitute name]".
func parseCommand(line string) (itemID string, req collab.TransitionRequest, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", req, fmt.Errorf("usage: <action> <item> [substitute name]")
	}

	action, err := store.ParseAction(fields[0])
	if err != nil {
		return "", req, err
	}

	req = collab.TransitionRequest{Action: string(action), EventID: newEventID()}
	if len(fields) > 2 {
		req.SubstituteName = strings.Join(fields[2:], " ")
	}
	if action == store.ActionSubstitute && req.SubstituteName == "" {
		return "", req, fmt.Errorf("substitute needs a substitute name")
	}
	return fields[1], req, nil
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
