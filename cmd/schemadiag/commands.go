package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tordrt/schemadiag"
	"github.com/tordrt/schemadiag/internal/db"
	"github.com/tordrt/schemadiag/internal/fd"
	"github.com/tordrt/schemadiag/internal/proof"
	"github.com/tordrt/schemadiag/internal/rpc"
	"github.com/tordrt/schemadiag/internal/session"
	"github.com/tordrt/schemadiag/internal/timeline"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the introspected schema, constraints and functional dependencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := resolveURL()
		if err != nil {
			return err
		}
		model, err := schemadiag.ExtractSchema(cmd.Context(), url, libraryOptions(cfg, logger))
		if err != nil {
			return err
		}
		return writeReport(&schemadiag.Report{Model: model, FDs: fd.InferModel(model)})
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check every constraint against live data and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := resolveURL()
		if err != nil {
			return err
		}
		r, err := schemadiag.Diagnose(cmd.Context(), url, libraryOptions(cfg, logger))
		if err != nil {
			return err
		}
		if err := writeReport(r); err != nil {
			return err
		}
		if failOnViolation && r.HasViolations() {
			return fmt.Errorf("%w: %d", errViolations, r.Summary().Violations)
		}
		return nil
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Print the recovery plan for the current violations",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := resolveURL()
		if err != nil {
			return err
		}
		r, err := schemadiag.Diagnose(cmd.Context(), url, libraryOptions(cfg, logger))
		if err != nil {
			return err
		}
		if r.Plan == nil {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No violations to recover from")
			return nil
		}
		// the plan stands alone; table details live in the diagnose report
		return writeReport(&schemadiag.Report{Results: r.Results, Plan: r.Plan})
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print recent database activity (PostgreSQL only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := resolveURL()
		if err != nil {
			return err
		}
		exec, err := db.Open(url)
		if err != nil {
			return err
		}
		if err := exec.Connect(cmd.Context()); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer func() { _ = exec.Close() }()

		events, err := timeline.Recent(cmd.Context(), exec)
		if err != nil {
			return err
		}
		printTimeline(cmd.OutOrStdout(), events)
		return nil
	},
}

var verifyProofsCmd = &cobra.Command{
	Use:   "verify-proofs [core-path]",
	Short: "Rebuild the proof library to confirm the cited theorems check",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		corePath := cfg.Proofs.CorePath
		if len(args) == 1 {
			corePath = args[0]
		}
		timeout, err := cfg.ProofTimeout()
		if err != nil {
			return err
		}

		ok, err := proof.NewVerifier(cfg.Proofs.LakeBinary, timeout, logger).Verify(cmd.Context(), corePath)
		switch {
		case err != nil:
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "unverified: %v\n", err)
			return nil
		case !ok:
			return fmt.Errorf("proof build failed in %s", corePath)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "verified")
		return nil
	},
}

var ipcCmd = &cobra.Command{
	Use:   "ipc",
	Short: "Serve the session protocol as JSON lines on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDispatcher()
		if err != nil {
			return err
		}
		defer func() { _ = d.Session().Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("ipc session started", zap.String("session", d.Session().State().ID))
		return rpc.ServeLines(ctx, d, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session protocol over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDispatcher()
		if err != nil {
			return err
		}
		defer func() { _ = d.Session().Close() }()

		srv := &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      rpc.NewHandler(d),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-quit:
		}

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the effective configuration to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Save(args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

// newDispatcher builds a session from the configuration, connecting when a URL is known
func newDispatcher() (*rpc.Dispatcher, error) {
	opts, err := sessionOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := session.New(opts)

	if url, err := resolveURL(); err == nil {
		if _, err := s.Connect(context.Background(), url); err != nil {
			logger.Warn("initial connection failed", zap.Error(err))
		}
	}
	return rpc.NewDispatcher(s, logger), nil
}

// writeReport renders to --output-dir, --output or stdout
func writeReport(r *schemadiag.Report) error {
	if outputDir != "" && outputFile != "" {
		return fmt.Errorf("cannot use both --output-dir and --output flags")
	}

	opts := &schemadiag.OutputOptions{Format: format, OutputDir: outputDir, Writer: os.Stdout}
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to close output file: %v\n", err)
			}
		}()
		opts.Writer = f
	}
	return schemadiag.FormatReport(r, opts)
}

func printTimeline(w io.Writer, events []timeline.Event) {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(w, "No recent activity")
		return
	}
	for _, e := range events {
		marker := " "
		if e.HasViolation {
			marker = "!"
		}
		_, _ = fmt.Fprintf(w, "%s %-26s %-10s %s", marker, e.Timestamp, e.Type, e.Description)
		if e.Details != "" {
			_, _ = fmt.Fprintf(w, " (%s)", e.Details)
		}
		_, _ = fmt.Fprintln(w)
	}
}
