package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pickboard/internal/ir"
	"github.com/roach88/pickboard/internal/push"
	"github.com/roach88/pickboard/internal/server"
	"github.com/roach88/pickboard/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Seed            string
	FragmentsInPush bool
	WriteTimeout    time.Duration
}

// SeedFile is the YAML layout accepted by --seed.
type SeedFile struct {
	Items []SeedItem `yaml:"items"`
}

// SeedItem is one item of a seed file.
type SeedItem struct {
	List       string `yaml:"list"`
	ID         string `yaml:"id"`
	Key        string `yaml:"key"`
	State      string `yaml:"state"`
	Substitute string `yaml:"substitute,omitempty"`
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference list server",
		Long: `Serve picking lists from a SQLite database.

The server answers initial loads and fragment fetches, applies picker
actions, and pushes every applied transition to the list's websocket
subscribers.

Example:
  pickboard serve --db ./pickboard.db --addr :8080
  pickboard serve --db /tmp/demo.db --seed ./demo.yaml --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default from config)")
	cmd.Flags().String("db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "YAML file of items to upsert before serving")
	cmd.Flags().BoolVar(&opts.FragmentsInPush, "fragments-in-push", false, "ship rendered fragments inside push messages")
	cmd.Flags().DurationVar(&opts.WriteTimeout, "write-timeout", 10*time.Second, "websocket write timeout")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	slog.Info("opening database", "path", cfg.DB)
	st, err := store.Open(cfg.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if opts.Seed != "" {
		n, err := seedStore(ctx, st, opts.Seed)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to seed database", err)
		}
		slog.Info("database seeded", "path", opts.Seed, "items", n)
	}

	srv := server.New(st, push.NewBroker(push.DefaultBuffer),
		server.WithFragmentsInPush(opts.FragmentsInPush),
		server.WithWriteTimeout(opts.WriteTimeout),
	)

	out := newFormatter(opts.RootOptions, cmd)
	if err := out.Success(serveStatus{Addr: cfg.Addr, DB: cfg.DB}); err != nil {
		return err
	}

	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

type serveStatus struct {
	Addr string `json:"addr"`
	DB   string `json:"db"`
}

func (s serveStatus) String() string {
	return fmt.Sprintf("Serving %s on %s. Press Ctrl-C to stop.", s.DB, s.Addr)
}

// seedStore upserts every item of a seed file and returns how many.
func seedStore(ctx context.Context, st *store.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	for i, si := range seed.Items {
		tag, ok := ir.ParseStateTag(si.State)
		if !ok {
			return 0, fmt.Errorf("items[%d]: unknown state %q", i, si.State)
		}
		it := ir.Item{
			ID:             si.ID,
			ListID:         si.List,
			DisplayKey:     si.Key,
			Flags:          ir.FlagsFor(tag),
			SubstituteName: si.Substitute,
		}
		if err := st.UpsertItem(ctx, it); err != nil {
			return 0, fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	return len(seed.Items), nil
}
