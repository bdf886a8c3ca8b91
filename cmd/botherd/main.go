package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	botFlags := &BotFlags{}
	serveFlags := &ServeFlags{}
	workerFlags := &WorkerFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createStartCommand(botFlags),
		createStopCommand(botFlags),
		createStatusCommand(botFlags),
		createSendCommand(botFlags),
		createWorkerCommand(workerFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "botherd",
		Short: "Supervisor and control plane for chat-bot workers",
		Long: `Botherd launches, monitors, and stops chat-bot worker processes and
talks to them over a TCP control plane.

Examples:
  botherd serve --config=botherd.toml          # Start the manager
  botherd start --id=echo-1                    # Start a configured bot
  botherd status                               # Status of every bot
  botherd stop --id=echo-1 --wait=5s           # Graceful stop, then kill`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createStartCommand(f *BotFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a configured bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "bot id (required)")
	addAPIFlags(cmd, f)
	must(cmd.MarkFlagRequired("id"))
	return cmd
}

func createStopCommand(f *BotFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a bot, escalating to a forced kill after --wait",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "bot id (required)")
	cmd.Flags().DurationVar(&f.Wait, "wait", 5*time.Second, "graceful stop window before forced kill")
	addAPIFlags(cmd, f)
	must(cmd.MarkFlagRequired("id"))
	return cmd
}

func createStatusCommand(f *BotFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show bot status (all bots when --id is omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "bot id (optional)")
	addAPIFlags(cmd, f)
	return cmd
}

func createSendCommand(f *BotFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a custom JSON command to a connected worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "bot id (required)")
	cmd.Flags().StringVar(&f.Payload, "payload", "", "JSON command payload (required)")
	addAPIFlags(cmd, f)
	must(cmd.MarkFlagRequired("id"))
	must(cmd.MarkFlagRequired("payload"))
	return cmd
}

func createServeCommand(globalFlags *GlobalFlags, f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the manager daemon",
		Long: `Run the botherd manager: the TCP control plane for workers, the
operator HTTP API, and the process supervisor. All configuration is
loaded from the TOML config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.ConfigPath == "" {
				f.ConfigPath = globalFlags.ConfigPath
			}
			return runServe(f, args)
		},
	}
	return cmd
}

func createWorkerCommand(f *WorkerFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a bot worker process",
		Long: `Run a single bot worker: connects to the manager's control plane,
registers under --id, and processes commands until told to stop.
Normally launched by the manager itself, not by hand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "bot id (required)")
	cmd.Flags().StringVar(&f.Addr, "addr", "", "manager control address host:port")
	cmd.Flags().StringVar(&f.Type, "type", "echo", "worker type (echo, chat)")
	cmd.Flags().StringVar(&f.TokenEnv, "token-env", "", "env var holding the platform token")
	must(cmd.MarkFlagRequired("id"))
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *BotFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "http://localhost:8080/api", "manager API URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
