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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ngnhng/durablereplay/examples/scenarios"
	_ "github.com/ngnhng/durablereplay/examples/scenarios/order"
	_ "github.com/ngnhng/durablereplay/examples/scenarios/periodic"
	"github.com/ngnhng/durablereplay/internal/app"
)

func main() {
	var (
		natsHost     = flag.String("host", "", "NATS server host (overrides NATS_HOST)")
		natsPort     = flag.String("port", "", "NATS server port (overrides NATS_PORT)")
		storeBackend = flag.String("store", "", "history store: memory, sqlite, pebble, postgres or nats (overrides STORE_BACKEND)")
		queueBackend = flag.String("queue", "", "task queue: memory or nats (overrides QUEUE_BACKEND)")
		taskList     = flag.String("task-list", "", "task list to poll (overrides WORKER_TASK_LIST)")
		httpAddr     = flag.String("http-addr", "", "serve health checks and the workflow API on this address (overrides HTTP_ADDR)")
		examples     = flag.String("examples", "", "comma-separated examples to start once the worker runs")
		listExamples = flag.Bool("list-examples", false, "list available examples and exit")
		replayFile   = flag.String("replay", "", "replay a history file against the registered workflows and exit")
		replayID     = flag.String("replay-id", "", "replay the stored history of a workflow id and exit")
		exportID     = flag.String("export", "", "write the history of a workflow id and exit")
		exportPath   = flag.String("export-path", "", "history file written by -export (default stdout)")
	)
	flag.Parse()

	if *listExamples {
		fmt.Println(strings.Join(scenarios.Names(), "\n"))
		return
	}

	var selected []string
	for _, name := range strings.Split(*examples, ",") {
		if name = strings.TrimSpace(name); name != "" {
			selected = append(selected, name)
		}
	}

	if err := app.Run(context.Background(), app.Options{
		NATSHost:         *natsHost,
		NATSPort:         *natsPort,
		StoreBackend:     *storeBackend,
		QueueBackend:     *queueBackend,
		TaskList:         *taskList,
		HTTPAddr:         *httpAddr,
		Examples:         selected,
		ReplayFile:       *replayFile,
		ReplayWorkflowID: *replayID,
		ExportWorkflowID: *exportID,
		ExportPath:       *exportPath,
	}); err != nil {
		slog.Error("durablereplay exited with error", "error", err)
		os.Exit(1)
	}
}
