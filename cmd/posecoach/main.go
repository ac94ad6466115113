// posecoach relays pose-estimation samples to a language model and returns
// gamified coaching feedback over a websocket.
//
// Usage:
//
//	posecoach [serve] [--addr :8000]   - Run the feedback server (default)
//	posecoach history [--db path]      - Print recently finished sessions
//
// Configuration is read from POSE_COACH_* environment variables, an optional
// YAML file named by POSE_COACH_CONFIG_FILE, and a .env file in the working
// directory.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/vango-go/posecoach/internal/history"
	"github.com/vango-go/posecoach/pkg/core"
	"github.com/vango-go/posecoach/pkg/gateway/config"
	"github.com/vango-go/posecoach/pkg/gateway/upstream"
)

type appDeps struct {
	loadDotEnv   func(path string) error
	loadConfig   func() (config.Config, error)
	newProvider  func(ctx context.Context, cfg config.Config, client *http.Client) (core.Provider, error)
	openHistory  func(ctx context.Context, path string) (*history.Store, error)
	listen       func(network, addr string) (net.Listener, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultDeps() appDeps {
	return appDeps{
		loadDotEnv: config.LoadDotEnv,
		loadConfig: config.LoadFromEnv,
		newProvider: func(ctx context.Context, cfg config.Config, client *http.Client) (core.Provider, error) {
			f := upstream.Factory{HTTPClient: client, BaseURL: cfg.ProviderBaseURL}
			return f.New(ctx, cfg.Provider, cfg.APIKey)
		},
		openHistory: history.Open,
		listen:      net.Listen,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func newRootCmd(stdout, stderr io.Writer, deps appDeps) *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:   "posecoach",
		Short: "Real-time yoga pose feedback server",
		Long: `posecoach accepts pose samples over a websocket at /ws/pose-feedback,
scores them, and replies with coaching feedback from a language model.

Examples:
  posecoach
  posecoach serve --addr :9000
  posecoach history --limit 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.loadDotEnv(".env")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), stderr, deps, addr)
		},
	}
	root.PersistentFlags().StringVar(&addr, "addr", "", "Listen address (overrides POSE_COACH_ADDR)")
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the feedback server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), stderr, deps, addr)
		},
	})
	root.AddCommand(newHistoryCmd(stdout, deps))
	return root
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	if args == nil {
		args = []string{}
	}
	root := newRootCmd(stdout, stderr, deps)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "posecoach: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultDeps()))
}
