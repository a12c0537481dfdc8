package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/justinmoon/ringlog/internal/capture"
	"github.com/justinmoon/ringlog/internal/config"
	"github.com/justinmoon/ringlog/internal/dmesg"
	"github.com/justinmoon/ringlog/internal/server"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ringlog",
		Short: "dmesg for your processes",
		Long:  "Ringlog captures process output into fixed-capacity ring buffers and serves the recent history over HTTP.",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ringlog version %s\n", version)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var serveHost string
	var servePort int
	var natsURL string
	var bufferBytes int

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ringlog daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Override with flags if provided
			if serveHost != "" {
				cfg.Server.Host = serveHost
			}
			if servePort != 0 {
				cfg.Server.Port = servePort
			}
			if natsURL != "" {
				cfg.Server.NatsURL = natsURL
			}
			if bufferBytes != 0 {
				cfg.Capture.BufferBytes = bufferBytes
			}

			// Tee our own log output into a ring so /v1/dmesg can serve it.
			dlog := dmesg.New(cfg.Server.DmesgBytes)
			log.SetOutput(dlog.Tee(os.Stderr))

			srv, err := server.New(cfg, dlog)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				<-sigCh
				fmt.Println("\nshutting down...")
				srv.Shutdown(context.Background())
			}()

			if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
				return fmt.Errorf("server error: %w", err)
			}

			return nil
		},
	}

	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to bind (default from config)")
	serveCmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS URL for session events (default from config)")
	serveCmd.Flags().IntVar(&bufferBytes, "buffer-bytes", 0, "per-session retention (default from config)")

	return serveCmd
}

func newRunCmd() *cobra.Command {
	var bufferBytes int
	var replay bool

	runCmd := &cobra.Command{
		Use:   "run -- command [args...]",
		Short: "Run a command and capture its output in a ring buffer",
		Long: "Runs a command under a pseudo-terminal, streaming its output while " +
			"retaining only the most recent portion. With --replay, prints the " +
			"retained tail again after the command exits.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := capture.NewManager(bufferBytes, nil)
			defer mgr.CloseAll()

			sess, err := mgr.Create("run", exec.Command(args[0], args[1:]...))
			if err != nil {
				return fmt.Errorf("failed to start command: %w", err)
			}

			subID, snapshot, outCh := sess.Subscribe()
			defer sess.Unsubscribe(subID)

			os.Stdout.Write(snapshot)
			for chunk := range outCh {
				os.Stdout.Write(chunk)
			}

			if replay {
				fmt.Printf("\n--- replay (last %d bytes retained) ---\n", len(sess.Snapshot()))
				os.Stdout.Write(sess.Snapshot())
			}

			if err := sess.CloseErr(); err != nil {
				return fmt.Errorf("command failed: %w", err)
			}
			return nil
		},
	}

	runCmd.Flags().IntVar(&bufferBytes, "buffer-bytes", 0, "output retention (default 1MiB)")
	runCmd.Flags().BoolVar(&replay, "replay", false, "print the retained tail after exit")

	return runCmd
}
