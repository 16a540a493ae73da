// -- cmd/output.go --
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/morphkit/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	formatHTML = "html"
	formatJSON = "json"
)

type instanceReport struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Type string `json:"type"`
	Refs int    `json:"refs"`
}

type pageReport struct {
	JobID        string           `json:"job_id"`
	Source       string           `json:"source"`
	Timestamp    string           `json:"timestamp"`
	DurationMS   int64            `json:"duration_ms"`
	HTML         string           `json:"html"`
	Instances    []instanceReport `json:"instances"`
	LoadedFrames []string         `json:"loaded_frames"`
	Errors       []string         `json:"errors,omitempty"`
}

func newPageReport(r *engine.Result) pageReport {
	report := pageReport{
		JobID:        r.JobID,
		Source:       r.Source,
		Timestamp:    r.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		DurationMS:   r.Duration.Milliseconds(),
		HTML:         r.HTML,
		Instances:    make([]instanceReport, 0, len(r.Instances)),
		LoadedFrames: r.LoadedFrames,
		Errors:       r.Errors,
	}
	if report.LoadedFrames == nil {
		report.LoadedFrames = []string{}
	}
	for _, e := range r.Instances {
		report.Instances = append(report.Instances, instanceReport{
			ID:   e.Key.ID,
			Kind: e.Key.Kind.String(),
			Type: e.Type,
			Refs: e.Refs,
		})
	}
	return report
}

// outputSink writes results to a directory, one file per page, or to a
// single stream when no directory is set. It implements engine.Sink.
type outputSink struct {
	format string
	dir    string
	out    io.Writer

	mu      sync.Mutex
	names   map[string]string
	written int
}

func newOutputSink(format, dir string, out io.Writer) (*outputSink, error) {
	format = strings.ToLower(format)
	if format != formatHTML && format != formatJSON {
		return nil, fmt.Errorf("unsupported output format %q (want html or json)", format)
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return &outputSink{format: format, dir: dir, out: out, names: make(map[string]string)}, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Name reserves the output file name for a job.
func (s *outputSink) Name(jobID string, index int, source string) {
	base := filepath.Base(source)
	if isRemote(source) || source == "-" || base == "." || base == "/" {
		base = "page"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Trim(unsafeName.ReplaceAllString(base, "_"), "_")
	if base == "" {
		base = "page"
	}
	s.mu.Lock()
	s.names[jobID] = fmt.Sprintf("%02d-%s.%s", index+1, base, s.format)
	s.mu.Unlock()
}

// Written returns how many results were persisted.
func (s *outputSink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Persist implements engine.Sink.
func (s *outputSink) Persist(ctx context.Context, result *engine.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var body []byte
	switch s.format {
	case formatJSON:
		data, err := json.Marshal(newPageReport(result))
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		body = append(data, '\n')
	default:
		var b strings.Builder
		if s.dir == "" {
			fmt.Fprintf(&b, "<!-- morphkit: %s -->\n", result.Source)
		}
		b.WriteString(result.HTML)
		b.WriteString("\n")
		body = []byte(b.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		name, ok := s.names[result.JobID]
		if !ok {
			name = result.JobID + "." + s.format
		}
		if err := os.WriteFile(filepath.Join(s.dir, name), body, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	} else if _, err := s.out.Write(body); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	s.written++
	return nil
}
