package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentplexus/frontdesk/internal/admission"
	"github.com/agentplexus/frontdesk/internal/config"
	"github.com/agentplexus/frontdesk/internal/finalize"
	"github.com/agentplexus/frontdesk/internal/flow"
	"github.com/agentplexus/frontdesk/internal/httpapi"
	"github.com/agentplexus/frontdesk/internal/issue"
	"github.com/agentplexus/frontdesk/internal/session"
	"github.com/agentplexus/frontdesk/internal/summary"
	"github.com/agentplexus/frontdesk/internal/telephony"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the receptionist server",
		Long:  "Starts the webhook and media-stream server, the issue queue, and the periodic sweep.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "frontdesk.yaml", "path to config file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	registry := session.NewRegistry()
	gate := admission.NewGate(cfg.Admission.MaxCallsPerHour, cfg.Admission.BlockedNumbers)
	queue := issue.NewQueue(cfg.Issues.Retention, cfg.Issues.Capacity)
	machine := flow.NewMachine(registry)

	summarizer, err := summary.NewOpenAIClient(summary.ClientConfig{
		APIKey: cfg.Model.APIKey,
		Model:  cfg.Model.SummaryModel,
	})
	if err != nil {
		return fmt.Errorf("init summarizer: %w", err)
	}
	finalizer := finalize.New(registry, summarizer, queue, log,
		finalize.WithTimeout(cfg.Model.SummarizeTimeout))

	phone, err := telephony.New(&telephony.Config{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
	})
	if err != nil {
		return fmt.Errorf("init telephony client: %w", err)
	}
	transfer := func(ctx context.Context, callSID string) error {
		_, err := phone.Transfer(ctx, callSID, cfg.OperatorNumber)
		return err
	}

	server := httpapi.New(cfg, log, gate, registry, machine, finalizer, queue,
		httpapi.WithTransfer(transfer))

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Issues.SweepSchedule, func() {
		if n := queue.Sweep(); n > 0 {
			log.Info("issue queue swept", zap.Int("evicted", n))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", cfg.Issues.SweepSchedule, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
