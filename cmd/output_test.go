// File: cmd/output_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/morphkit/internal/engine"
	"github.com/xkilldash9x/morphkit/internal/registry"
	"github.com/xkilldash9x/morphkit/internal/widget"
)

func sampleResult() *engine.Result {
	return &engine.Result{
		JobID:     "job-1",
		Source:    "pages/index.html",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		HTML:      "<html></html>",
		Instances: []registry.EntrySnapshot{
			{Key: registry.Key{ID: "edit", Kind: widget.KindModal}, Type: "*widget.Modal", Refs: 1},
		},
	}
}

func TestNewPageReport(t *testing.T) {
	got := newPageReport(sampleResult())
	want := pageReport{
		JobID:        "job-1",
		Source:       "pages/index.html",
		Timestamp:    "2024-05-01T12:00:00.000Z",
		DurationMS:   1500,
		HTML:         "<html></html>",
		Instances:    []instanceReport{{ID: "edit", Kind: "modal", Type: "*widget.Modal", Refs: 1}},
		LoadedFrames: []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestOutputSink_Stdout(t *testing.T) {
	var out bytes.Buffer
	sink, err := newOutputSink("HTML", "", &out)
	require.NoError(t, err)

	require.NoError(t, sink.Persist(context.Background(), sampleResult()))
	assert.Equal(t, "<!-- morphkit: pages/index.html -->\n<html></html>\n", out.String())
	assert.Equal(t, 1, sink.Written())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Persist(ctx, sampleResult()), context.Canceled)
}

func TestOutputSink_JSONLines(t *testing.T) {
	var out bytes.Buffer
	sink, err := newOutputSink(formatJSON, "", &out)
	require.NoError(t, err)

	require.NoError(t, sink.Persist(context.Background(), sampleResult()))
	require.NoError(t, sink.Persist(context.Background(), sampleResult()))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var report pageReport
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &report))
	assert.Equal(t, "job-1", report.JobID)
	assert.Equal(t, int64(1500), report.DurationMS)
}

func TestOutputSink_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	sink, err := newOutputSink(formatHTML, dir, nil)
	require.NoError(t, err)

	tests := []struct {
		jobID  string
		index  int
		source string
		want   string
	}{
		{"a", 0, "pages/index.html", "01-index.html"},
		{"b", 1, "https://example.com/app", "02-page.html"},
		{"c", 2, "-", "03-page.html"},
		{"d", 3, "weird name!.htm", "04-weird_name.html"},
	}
	for _, tt := range tests {
		sink.Name(tt.jobID, tt.index, tt.source)
		r := sampleResult()
		r.JobID = tt.jobID
		require.NoError(t, sink.Persist(context.Background(), r))

		data, err := os.ReadFile(filepath.Join(dir, tt.want))
		require.NoError(t, err, tt.want)
		assert.Equal(t, "<html></html>\n", string(data), "files carry no source banner")
	}

	r := sampleResult()
	r.JobID = "unnamed"
	require.NoError(t, sink.Persist(context.Background(), r))
	assert.FileExists(t, filepath.Join(dir, "unnamed.html"))
}

func TestOutputSink_RejectsUnknownFormat(t *testing.T) {
	_, err := newOutputSink("xml", "", &bytes.Buffer{})
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestSourceLoader_Stdin(t *testing.T) {
	loader := &sourceLoader{stdin: strings.NewReader("<p>piped</p>"), logger: zap.NewNop()}
	body, err := loader.Load(context.Background(), "-")
	require.NoError(t, err)
	assert.Equal(t, "<p>piped</p>", body)

	_, err = (&sourceLoader{logger: zap.NewNop()}).Load(context.Background(), "-")
	assert.Error(t, err)
}
