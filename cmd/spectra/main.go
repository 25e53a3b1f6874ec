package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spectra-gallery/spectra/internal/app"
	"github.com/spectra-gallery/spectra/internal/config"
	"github.com/spectra-gallery/spectra/internal/storage"
	"github.com/spectra-gallery/spectra/internal/theme"
	"github.com/spectra-gallery/spectra/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// cli carries the global flags and the lazily built App.
type cli struct {
	configPath string
	apiURL     string
	statePath  string
	logLevel   string
	timeout    time.Duration
	verbose    bool

	// finish runs after each command, successful or not.
	finish []func()
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "spectra",
		Short: "Command-line client for the Spectra image board",
		Long: `spectra talks to a Spectra REST API.

The session token and the theme preference are kept in a small JSON state
file so that a login survives between invocations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to a JSON config file")
	flags.StringVar(&c.apiURL, "api", "", "API base URL (overrides SPECTRA_API_URL)")
	flags.StringVar(&c.statePath, "state", "", "path of the state file holding the token and theme")
	flags.StringVar(&c.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")
	flags.DurationVar(&c.timeout, "timeout", 0, "per-request timeout (0 keeps the configured value)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "print a readable trace of session, theme and HTTP activity to stderr")

	root.AddCommand(
		loginCmd(c),
		logoutCmd(c),
		registerCmd(c),
		whoamiCmd(c),
		themeCmd(c),
		postsCmd(c),
		tagsCmd(c),
		commentsCmd(c),
		voteCmd(c),
		adminCmd(c),
	)
	c.wrapRun(root)
	return root
}

// wrapRun makes every command run the finish hooks once it returns.
func (c *cli) wrapRun(cmd *cobra.Command) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			defer c.close()
			return run(cmd, args)
		}
	}
	for _, sub := range cmd.Commands() {
		c.wrapRun(sub)
	}
}

func (c *cli) close() {
	for i := len(c.finish) - 1; i >= 0; i-- {
		c.finish[i]()
	}
	c.finish = nil
}

type openOptions struct {
	fetchTheme bool
	document   theme.Document
}

// open builds the App for one command and waits for session hydration.
func (c *cli) open(cmd *cobra.Command, opts openOptions) (*app.App, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.apiURL != "" {
		cfg.API.BaseURL = strings.TrimSuffix(c.apiURL, "/")
	}
	if c.statePath != "" {
		cfg.Client.StatePath = c.statePath
	}
	if c.logLevel != "" {
		cfg.Client.LogLevel = c.logLevel
	}
	if c.timeout > 0 {
		cfg.API.TimeoutSeconds = int(c.timeout.Round(time.Second) / time.Second)
	}

	level, err := logging.ParseLevel(cfg.Client.LogLevel)
	if err != nil {
		return nil, err
	}
	slots, err := storage.OpenFile(cfg.Client.StatePath)
	if err != nil {
		return nil, err
	}

	var logger *logging.Logger
	if c.verbose {
		logger = logging.New(level)
		logger.SetLevel(logging.DEBUG)
		c.finish = append(c.finish, traceTo(logger, cmd.ErrOrStderr()))
	} else {
		logger = logging.New(level, cmd.ErrOrStderr())
	}

	a, err := app.New(cmd.Context(), app.Options{
		Config:     cfg,
		Slots:      slots,
		Document:   opts.document,
		Logger:     logger,
		FetchTheme: opts.fetchTheme,
	})
	if err != nil {
		return nil, err
	}
	if err := a.Ready(cmd.Context()); err != nil {
		return nil, err
	}
	return a, nil
}

// authorized runs fn with the stored token, explaining why when there is none.
func authorized(ctx context.Context, a *app.App, fn func(ctx context.Context, token string) error) error {
	if a.Session.Token() == "" {
		if msg := a.Session.State().Error; msg != "" {
			return fmt.Errorf("not logged in: %s", msg)
		}
		return fmt.Errorf("not logged in; run `spectra login` first")
	}
	return a.Session.Authorized(ctx, fn)
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
