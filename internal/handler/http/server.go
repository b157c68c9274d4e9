// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ngnhng/durablereplay/sdk/client"
)

const shutdownTimeout = 5 * time.Second

// Server exposes health checks and a control API over a workflow client.
type Server struct {
	health    *HealthHandler
	workflows *WorkflowHandler
	server    *http.Server
	logger    *slog.Logger
}

func NewServer(addr string, c client.Client, checks []Check, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		health:    NewHealthHandler(checks),
		workflows: NewWorkflowHandler(c, logger),
		logger:    logger,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(s.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the mux serving every endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.health.Health)
	mux.HandleFunc("GET /readyz", s.health.Ready)

	mux.HandleFunc("POST /api/workflows", s.workflows.Start)
	mux.HandleFunc("GET /api/workflows/{id}/history", s.workflows.History)
	mux.HandleFunc("POST /api/workflows/{id}/signals/{name}", s.workflows.Signal)
	mux.HandleFunc("POST /api/workflows/{id}/cancel", s.workflows.Cancel)

	return mux
}

// Start serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
