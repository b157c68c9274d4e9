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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ngnhng/durablereplay/sdk/client"
	"github.com/ngnhng/durablereplay/sdk/worker"
)

const maxBodySize = 1 << 20

// WorkflowHandler starts, signals and cancels workflow executions and serves
// their histories.
type WorkflowHandler struct {
	client client.Client
	logger *slog.Logger
}

func NewWorkflowHandler(c client.Client, logger *slog.Logger) *WorkflowHandler {
	return &WorkflowHandler{client: c, logger: logger}
}

// StartRequest is the body of POST /api/workflows.
type StartRequest struct {
	WorkflowType string `json:"workflow_type"`
	WorkflowID   string `json:"workflow_id,omitempty"`
	TaskList     string `json:"task_list,omitempty"`
	Args         []any  `json:"args,omitempty"`
}

// StartResponse identifies the started run.
type StartResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// CancelRequest is the optional body of POST /api/workflows/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *WorkflowHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.WorkflowType == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("workflow_type is required"))
		return
	}

	run, err := h.client.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:       req.WorkflowID,
		TaskList: req.TaskList,
	}, req.WorkflowType, req.Args...)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.logger.Info("workflow started over HTTP",
		"workflow_id", run.GetID(), "run_id", run.GetRunID(), "workflow_type", req.WorkflowType)
	writeJSON(w, http.StatusCreated, StartResponse{WorkflowID: run.GetID(), RunID: run.GetRunID()})
}

// History writes the run history as a YAML history file. The run_id query
// parameter selects a run; the current run is used otherwise.
func (h *WorkflowHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.client.GetWorkflowHistory(r.Context(), r.PathValue("id"), r.URL.Query().Get("run_id"))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	if err := worker.WriteHistoryFile(w, history); err != nil {
		h.logger.Error("failed to write history", "workflow_id", r.PathValue("id"), "error", err)
	}
}

// Signal delivers the JSON body as the signal argument.
func (h *WorkflowHandler) Signal(w http.ResponseWriter, r *http.Request) {
	var arg any
	if err := decodeBody(r, &arg); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, name := r.PathValue("id"), r.PathValue("name")
	if err := h.client.SignalWorkflow(r.Context(), id, r.URL.Query().Get("run_id"), name, arg); err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *WorkflowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.client.CancelWorkflow(r.Context(), r.PathValue("id"), r.URL.Query().Get("run_id"), req.Reason); err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, client.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, client.ErrWorkflowClosed), errors.Is(err, client.ErrWorkflowRunning):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *WorkflowHandler) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
