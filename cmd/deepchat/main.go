// deepchat - terminal client for the deep-search agent
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ashureev/deepchat/internal/chat"
	"github.com/ashureev/deepchat/internal/config"
	"github.com/ashureev/deepchat/internal/convlog"
	"github.com/ashureev/deepchat/internal/render"
	"github.com/ashureev/deepchat/internal/transport"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		serverURL   string
		mode        string
		userID      string
		depth       int
		deepSearch  bool
		downloadDir string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "deepchat",
		Short: "Chat with the deep-search agent from the terminal",
		Long: `deepchat opens an interactive session with a deep-search agent.

Messages are sent over a persistent push channel by default; with
--mode request each turn is a single HTTP exchange instead. Deep-search
turns return a PDF report which is saved to the download directory.

Session commands:
  /deepsearch   toggle deep-search mode
  /depth N      set search depth
  /rate N       answer the rating prompt with N stars
  /quit         end the session`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			}))
			slog.SetDefault(logger)

			if err := godotenv.Load(); err != nil {
				logger.Debug("No .env file found, using environment variables")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.ServerURL = serverURL
			}
			if flags.Changed("mode") {
				cfg.Mode = mode
			}
			if flags.Changed("user") {
				cfg.UserID = userID
			}
			if flags.Changed("depth") {
				cfg.Depth = depth
			}
			if flags.Changed("deepsearch") {
				cfg.DeepSearch = deepSearch
			}
			if flags.Changed("download-dir") {
				cfg.DownloadDir = downloadDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runSession(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:5000", "agent server base URL")
	cmd.Flags().StringVar(&mode, "mode", config.ModePush, "transport mode: push or request")
	cmd.Flags().StringVar(&userID, "user", "", "user id sent with each run")
	cmd.Flags().IntVar(&depth, "depth", 1, "search depth")
	cmd.Flags().BoolVar(&deepSearch, "deepsearch", false, "start with deep-search enabled")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "./downloads", "directory for PDF reports")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func runSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conv, err := convlog.New(convlog.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return err
	}

	ui := newConsole(os.Stdout)
	sessionMode := chat.ModePush
	if cfg.Mode == config.ModeRequest {
		sessionMode = chat.ModeRequest
	}

	client := chat.NewClient(chat.ClientOptions{
		UserID:          cfg.UserID,
		Mode:            sessionMode,
		Renderer:        render.New(&render.FileDownloader{Dir: cfg.DownloadDir}),
		Listener:        ui,
		ConversationLog: conv,
		Logger:          logger,
	})
	client.Ratings.OnShow = ui.showRating
	client.Ratings.OnDismiss = ui.dismissRating

	if cfg.DeepSearch {
		client.Controller.ToggleDeepSearch()
	}
	client.Controller.SetDepth(cfg.Depth)

	var strategy transport.Strategy
	if sessionMode == chat.ModePush {
		strategy, err = transport.DialPush(ctx, cfg.ServerURL, client.Reconciler, logger)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", cfg.ServerURL, err)
		}
	} else {
		strategy = transport.NewRequestResponse(cfg.ServerURL, client.Reconciler, logger)
	}
	client.Bind(strategy)
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("Failed to close client cleanly", "error", closeErr)
		}
	}()

	ui.notice("Connected to %s (session %s, mode %s). Type a message, or /quit to leave.",
		cfg.ServerURL, client.Session.ID(), cfg.Mode)

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			ui.notice("Session ended.")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.HasPrefix(line, "/") {
				if quit := runCommand(ui, client, line); quit {
					return nil
				}
				continue
			}
			submit(ctx, ui, client, line)
		}
	}
}

func readLines(r *os.File, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func submit(ctx context.Context, ui *console, client *chat.Client, text string) {
	switch err := client.Submit(ctx, text); {
	case errors.Is(err, chat.ErrEmptyMessage):
		// Nothing to send.
	case errors.Is(err, chat.ErrBlocked):
		ui.notice("(the agent is still working on the previous message)")
	case err != nil:
		ui.notice("(failed to send: %v)", err)
	}
}

// runCommand handles the /-prefixed session commands. It reports whether
// the session should end.
func runCommand(ui *console, client *chat.Client, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/deepsearch":
		if client.Controller.ToggleDeepSearch() {
			ui.notice("(deep search on: the next answer arrives as a PDF report)")
		} else {
			ui.notice("(deep search off)")
		}
	case "/depth":
		if len(fields) != 2 {
			ui.notice("(usage: /depth N)")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			ui.notice("(usage: /depth N)")
			return false
		}
		client.Controller.SetDepth(n)
		ui.notice("(search depth set to %d)", n)
	case "/rate":
		if len(fields) != 2 {
			ui.notice("(usage: /rate N)")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			ui.notice("(usage: /rate N)")
			return false
		}
		prompt := client.Ratings.Current()
		if prompt == nil {
			ui.notice("(no rating prompt is open)")
			return false
		}
		if err := prompt.Select(n); err != nil {
			ui.notice("(%v)", err)
		}
	default:
		ui.notice("(unknown command %s)", fields[0])
	}
	return false
}
