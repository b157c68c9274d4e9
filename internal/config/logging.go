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

package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// LoggerConfig is read from the LOG_ variables.
type LoggerConfig struct {
	Level          string  `json:"level"         env:"LEVEL"         envDefault:"info"`   // trace|debug|info|warn|error
	Format         string  `json:"format"        env:"FORMAT"        envDefault:"auto"`   // auto|json|text|pretty
	Output         string  `json:"output"        env:"OUTPUT"        envDefault:"stdout"` // comma-separated stdout|stderr|file|file:<path>
	FilePath       string  `json:"file_path"     env:"FILE_PATH"`                         // target of a bare "file" output
	FileMode       string  `json:"file_mode"     env:"FILE_MODE"     envDefault:"0644"`   // octal
	SampleRate     float64 `json:"sample_rate"   env:"SAMPLE_RATE"   envDefault:"1"`      // kept share of records below warn
	ExtraFieldsRaw string  `json:"fields"        env:"FIELDS"`                            // k1=v1,k2=v2
	OTELExporter   string  `json:"otel_exporter" env:"OTEL_EXPORTER" envDefault:"none"`   // none|otlp-http|otlp-grpc
	OTELEndpoint   string  `json:"otel_endpoint" env:"OTEL_ENDPOINT"`

	mu    sync.Mutex
	files map[string]*os.File
}

// LevelTrace sits below slog.LevelDebug.
const LevelTrace = slog.Level(-8)

var logLevels = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Writers resolves LOG_OUTPUT into writers, for example
// "stdout,file:/var/log/durablereplay.log". Duplicates are dropped and unknown
// entries are skipped with a warning. Stdout is the fallback.
func (c *Config) Writers() []io.Writer {
	var writers []io.Writer
	seen := map[string]bool{}
	add := func(key string, open func() io.Writer) {
		if seen[key] {
			return
		}
		seen[key] = true
		if w := open(); w != nil {
			writers = append(writers, w)
		}
	}

	for _, entry := range strings.Split(c.Logger.Output, ",") {
		entry = strings.TrimSpace(entry)
		name, path, isFile := strings.Cut(entry, ":")
		switch strings.ToLower(name) {
		case "":
		case "stdout":
			add("stdout", func() io.Writer { return os.Stdout })
		case "stderr":
			add("stderr", func() io.Writer { return os.Stderr })
		case "file":
			if !isFile {
				path = c.Logger.FilePath
			}
			if path == "" {
				slog.Warn("log output 'file' needs LOG_FILE_PATH or file:<path>, skipping")
				continue
			}
			add("file:"+path, func() io.Writer { return c.Logger.openFile(path) })
		default:
			slog.Warn("unknown log output entry", "entry", entry)
		}
	}

	if len(writers) == 0 {
		return []io.Writer{os.Stdout}
	}
	return writers
}

func (lc *LoggerConfig) openFile(path string) io.Writer {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if f, ok := lc.files[path]; ok {
		return f
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, lc.ParseFileMode())
	if err != nil {
		slog.Warn("cannot open log file", "path", path, "error", err)
		return nil
	}
	if lc.files == nil {
		lc.files = map[string]*os.File{}
	}
	lc.files[path] = f
	return f
}

// CloseFiles closes the log files opened by Writers.
func (c *Config) CloseFiles() error {
	c.Logger.mu.Lock()
	defer c.Logger.mu.Unlock()
	var errs []error
	for _, f := range c.Logger.files {
		errs = append(errs, f.Close())
	}
	c.Logger.files = nil
	return errors.Join(errs...)
}

// ParseExtraFields reads ExtraFieldsRaw. Entries without "=" or with an empty
// key are ignored.
func (lc *LoggerConfig) ParseExtraFields() map[string]string {
	fields := map[string]string{}
	if lc == nil {
		return fields
	}
	for _, pair := range strings.Split(lc.ExtraFieldsRaw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if k = strings.TrimSpace(k); ok && k != "" {
			fields[k] = strings.TrimSpace(v)
		}
	}
	return fields
}

// ParseFileMode reads FileMode as octal, defaulting to 0644.
func (lc *LoggerConfig) ParseFileMode() os.FileMode {
	if m, err := strconv.ParseUint(strings.TrimSpace(lc.FileMode), 8, 32); err == nil && m != 0 {
		return os.FileMode(m)
	}
	return 0o644
}

// ParseSampleRate clamps SampleRate to [0, 1].
func (lc *LoggerConfig) ParseSampleRate() float64 {
	if lc == nil {
		return 1
	}
	return min(max(lc.SampleRate, 0), 1)
}

// ParseLevel normalizes Level, falling back to "info".
func (lc *LoggerConfig) ParseLevel() string {
	if lc == nil {
		return "info"
	}
	lvl := strings.ToLower(strings.TrimSpace(lc.Level))
	if _, ok := logLevels[lvl]; !ok {
		return "info"
	}
	return lvl
}

func (c *Config) LogLevel() slog.Level { return logLevels[c.Logger.ParseLevel()] }

func (c *Config) LogFormat() string              { return c.Logger.Format }
func (c *Config) SampleRate() float64            { return c.Logger.ParseSampleRate() }
func (c *Config) OTELExporter() string           { return c.Logger.OTELExporter }
func (c *Config) OTELEndpoint() string           { return c.Logger.OTELEndpoint }
func (c *Config) ExtraFields() map[string]string { return c.Logger.ParseExtraFields() }
