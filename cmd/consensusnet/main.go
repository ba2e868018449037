package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/consensusnet/consensusnet"
	"github.com/consensusnet/consensusnet/pkg/config"
)

// Version is set via ldflags.
var Version = "dev"

var (
	configFile string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "consensusnet",
		Short:         "Multi-agent fact verification",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "configuration file (YAML)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(newVerifyCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newVerifyCmd() *cobra.Command {
	var (
		mode     string
		domain   string
		urgency  string
		privacy  bool
		asJSON   bool
		deadline time.Duration
	)

	cmd := &cobra.Command{
		Use:   "verify \"claim text\"",
		Short: "Verify a single claim and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := consensusnet.New(cfg, consensusnet.WithLogger(newLogger()))
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := cmd.Context()
			if deadline > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, deadline)
				defer cancel()
			}

			res, err := engine.Submit(ctx, args[0], consensusnet.Mode(mode), consensusnet.Hints{
				DomainOverride: consensusnet.Domain(domain),
				Privacy:        privacy,
				Urgency:        consensusnet.Urgency(urgency),
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(consensusnet.ModeSingle), "verification mode: single, multi, adversarial")
	cmd.Flags().StringVar(&domain, "domain", "", "domain override: science, health, news, tech, general")
	cmd.Flags().StringVar(&urgency, "urgency", "", "urgency hint: normal, high")
	cmd.Flags().BoolVar(&privacy, "privacy", false, "keep the claim on the local model tier")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().DurationVar(&deadline, "timeout", 0, "overall deadline (0 uses the pool default)")
	return cmd
}

func printResult(cmd *cobra.Command, res *consensusnet.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  (confidence %.2f, mode %s, %s)\n",
		res.Label, res.Confidence, res.Mode, res.Elapsed.Round(time.Millisecond))
	if res.Partial {
		fmt.Fprintln(out, "partial: some panel agents missed their deadline")
	}
	for _, v := range res.Verdicts {
		fmt.Fprintf(out, "  %-14s %-9s %.2f  tier=%-9s evidence=%.2f\n",
			v.AgentID, v.Label, v.Confidence, v.ModelTier, v.EvidenceQuality)
		if v.Reasoning != "" {
			fmt.Fprintf(out, "    %s\n", v.Reasoning)
		}
	}
	if d := res.Debate; d != nil {
		fmt.Fprintf(out, "debate: %d round(s), quality %.2f\n", len(d.Rounds), d.Quality)
		for _, r := range d.Rounds {
			for _, ex := range r.Exchanges {
				ruling := "rebutted"
				if ex.Assessment.Upheld {
					ruling = "upheld"
				}
				stance := "no answer"
				if ex.Response != nil {
					stance = string(ex.Response.Stance)
				}
				fmt.Fprintf(out, "  round %d: [%s/%s] %s | defender: %s, %s\n",
					r.Number, ex.Challenge.Type, ex.Challenge.Strength,
					truncate(ex.Challenge.Text, 80), stance, ruling)
			}
		}
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the verification pool and expose metrics and health endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}
			logger := newLogger()

			engine, err := consensusnet.New(cfg, consensusnet.WithLogger(logger))
			if err != nil {
				return err
			}
			defer engine.Close()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "ok")
			})
			srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

			errChan := make(chan error, 1)
			go func() {
				logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errChan <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errChan:
				return err
			case <-quit:
				logger.Info("shutting down")
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address (overrides configuration)")
	return cmd
}
