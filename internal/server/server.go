// Package server assembles configuration, storage, auth, billing, and HTTP
// routing into the MenuShield service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/menushield/menushield/internal/auditlog"
	"github.com/menushield/menushield/internal/auth"
	"github.com/menushield/menushield/internal/blob"
	"github.com/menushield/menushield/internal/email"
	"github.com/menushield/menushield/internal/logging"
	"github.com/menushield/menushield/internal/registry"
)

// Run starts the MenuShield HTTP server with graceful shutdown.
func Run(ctx context.Context, version string) error {
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "menushield",
	})

	log.Info().Str("version", version).Msg("Starting MenuShield")

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	reg, err := registry.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	audit, err := auditlog.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open webhook audit log: %w", err)
	}
	defer audit.Close()

	authSvc, err := auth.NewService(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}
	defer authSvc.Close()

	blobStore, err := blob.NewFSStore(cfg.UploadsDir(), "/uploads")
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	var emailSender email.Sender
	if cfg.ResendAPIKey != "" {
		emailSender = email.NewResendSender(cfg.ResendAPIKey)
		log.Info().Msg("Email sender configured (Resend)")
	} else {
		emailSender = email.NewLogSender(func(to, subject, body string) {
			const maxBody = 4096
			bodyForLog := body
			if len(bodyForLog) > maxBody {
				bodyForLog = bodyForLog[:maxBody] + "...(truncated)"
			}
			log.Info().
				Str("to", to).
				Str("subject", subject).
				Str("body", bodyForLog).
				Msg("Email (log-only, no email provider configured)")
		})
		log.Info().Msg("Email sender: log-only (set RESEND_API_KEY to enable)")
	}

	mux := http.NewServeMux()
	deps := &Deps{
		Config:      cfg,
		Registry:    reg,
		Audit:       audit,
		Auth:        authSvc,
		EmailSender: emailSender,
		Blob:        blobStore,
		Version:     version,
	}
	RegisterRoutes(mux, deps)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           SecurityHeaders(RequestID(mux)),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		log.Info().Str("addr", addr).Msg("MenuShield listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	log.Info().Msg("MenuShield stopped")
	return nil
}
