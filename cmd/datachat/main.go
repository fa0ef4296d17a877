// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Command datachat runs the datachat service: it ingests a tabular
// dataset per session and lets a user explore it through an LLM agent
// that can query, plot, and summarize the data over a websocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datachat-oss/datachat/internal/agentloop"
	"github.com/datachat-oss/datachat/internal/authn"
	"github.com/datachat-oss/datachat/internal/cache"
	"github.com/datachat-oss/datachat/internal/config"
	"github.com/datachat-oss/datachat/internal/contextbuilder"
	"github.com/datachat-oss/datachat/internal/httpapi"
	"github.com/datachat-oss/datachat/internal/llmclient"
	"github.com/datachat-oss/datachat/internal/session"
	"github.com/datachat-oss/datachat/internal/store"
	"github.com/datachat-oss/datachat/internal/tools"
	"github.com/datachat-oss/datachat/internal/transport"
	"github.com/datachat-oss/datachat/pkg/logging"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "datachat",
		Short: "datachat serves an LLM agent that answers questions about an uploaded dataset",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "datachat",
		JSON:    cfg.GinMode == "release",
	})
	defer logger.Close()

	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open message store: %w", err)
	}

	profileCache, err := cache.Open(cfg.BadgerDir)
	if err != nil {
		return fmt.Errorf("open profile cache: %w", err)
	}
	defer profileCache.Close()

	var auth authn.Provider
	if cfg.JWTSecret != "" {
		auth = authn.NewJWTProvider(cfg.JWTSecret)
		logger.Info("using JWT authentication")
	} else {
		auth = authn.NewNopProvider()
		logger.Info("using single-tenant nop authentication; set JWT_SECRET to require credentials")
	}

	llm, err := llmclient.New(string(cfg.LLMBackend), backendAPIKey(cfg), backendModel(cfg))
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	builder, err := contextbuilder.NewBuilder(cfg.ContextTokenBudget)
	if err != nil {
		return fmt.Errorf("build context builder: %w", err)
	}

	loop := agentloop.New(llm, builder, st)
	engines := httpapi.NewEngineRegistry(cfg.SQLRowCap, cfg.SQLTimeout)
	sessions := session.NewRegistry()

	loader := sessionLoader(st, engines, profileCache, cfg)

	router := httpapi.New(httpapi.Deps{
		Config:   cfg,
		Store:    st,
		Engines:  engines,
		Sessions: sessions,
		Auth:     auth,
		Runner:   loop,
		WSLoader: loader,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-stop.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func backendAPIKey(cfg *config.Config) string {
	if cfg.LLMBackend == config.BackendOpenAI {
		return cfg.OpenAIAPIKey
	}
	return cfg.AnthropicAPIKey
}

func backendModel(cfg *config.Config) string {
	if cfg.LLMBackend == config.BackendOpenAI {
		return cfg.OpenAIModel
	}
	return cfg.AnthropicModel
}

// sessionLoader resolves a session ID into everything a websocket
// connection needs to run turns for it, reloading the profile from cache
// (or recomputing it from the dataset row) and reopening the query
// engine if the process was restarted since the session was created.
func sessionLoader(st *store.Store, engines *httpapi.EngineRegistry, profileCache *cache.ProfileCache, cfg *config.Config) transport.SessionLoader {
	return func(ctx context.Context, sessionID string) (*transport.SessionContext, error) {
		ds, err := st.GetDataset(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load dataset: %w", err)
		}

		profile, found, err := profileCache.Get(sessionID)
		if err != nil || !found {
			profile, err = ds.UnmarshalProfile()
			if err != nil {
				return nil, fmt.Errorf("decode profile: %w", err)
			}
			_ = profileCache.Put(sessionID, profile)
		}

		engine, err := engines.Get(ctx, sessionID, ds)
		if err != nil {
			return nil, fmt.Errorf("resolve query engine: %w", err)
		}

		messages, err := st.ListMessagesForContext(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load message history: %w", err)
		}

		return &transport.SessionContext{
			Profile:       profile,
			Executor:      tools.NewExecutor(engine, cfg.PlotRowCap),
			IsInitialTurn: len(messages) == 0,
		}, nil
	}
}
