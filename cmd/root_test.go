// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/morphkit/internal/observability"
	"github.com/xkilldash9x/morphkit/internal/turbostream"
)

const testPage = `<html><body>
<button id="open" data-controller="modal-trigger" data-modal-trigger-outlet="#edit">Edit</button>
<div id="edit" class="hidden" data-controller="modal-target"><input id="name" value="Ada"></div>
<div id="stats" data-controller="lazy-frame" data-lazy-frame-url-value="/stats">
	<div id="stats_frame" data-lazy-frame-target="frame">loading</div>
</div>
<div id="flash"></div>
</body></html>`

// executeCommand runs a fresh command tree and captures stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fragmentServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stats":
			_ = turbostream.NewBuilder().
				LazyFrames(map[string]string{"stats_frame": `<p id="count">42</p>`}).
				WriteTo(w)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(testPage))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// newConfigCmd returns a command carrying the render flags, for exercising
// initializeConfig directly.
func newConfigCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := newRenderCmd()
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("base-url", "", "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "morphkit "+Version))

	out, err = executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestInitializeConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := initializeConfig(newConfigCmd(t), viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Engine().WorkerConcurrency)
		assert.Equal(t, "http://localhost:3000", cfg.Network().BaseURL)
	})

	t.Run("config file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "morphkit.yaml", `
engine:
  worker_concurrency: 7
  settle_time: 250ms
network:
  base_url: https://app.example.com
bridge:
  drawer_reset_forms_on_show: false
`)
		cfg, err := initializeConfig(newConfigCmd(t), viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Engine().WorkerConcurrency)
		assert.Equal(t, 250*time.Millisecond, cfg.Engine().SettleTime)
		assert.Equal(t, "https://app.example.com", cfg.Network().BaseURL)
		assert.False(t, cfg.Bridge().DrawerResetFormsOnShow)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "morphkit.yaml", "engine:\n  worker_concurrency: 7\n")
		t.Setenv("MORPHKIT_ENGINE_WORKER_CONCURRENCY", "9")
		cfg, err := initializeConfig(newConfigCmd(t), viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Engine().WorkerConcurrency)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("MORPHKIT_ENGINE_WORKER_CONCURRENCY", "9")
		cmd := newConfigCmd(t, "--concurrency", "2", "--settle", "10ms", "--base-url", "http://127.0.0.1:9")
		cfg, err := initializeConfig(cmd, viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Engine().WorkerConcurrency)
		assert.Equal(t, 10*time.Millisecond, cfg.Engine().SettleTime)
		assert.Equal(t, "http://127.0.0.1:9", cfg.Network().BaseURL)
	})

	t.Run("unreadable file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "morphkit.yaml", "engine: [unterminated")
		_, err := initializeConfig(newConfigCmd(t), viper.New(), path)
		assert.ErrorContains(t, err, "error reading config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		cmd := newConfigCmd(t, "--concurrency=-1")
		_, err := initializeConfig(cmd, viper.New(), "")
		assert.ErrorContains(t, err, "failed to load config")
	})
}

func TestConfigFromContext(t *testing.T) {
	_, err := configFromContext(context.Background())
	assert.EqualError(t, err, "configuration was not initialized")

	_, err = configFromContext(nil) //nolint:staticcheck
	assert.Error(t, err)
}

func TestRenderCommand_HTML(t *testing.T) {
	server := fragmentServer(t)
	page := writeFile(t, t.TempDir(), "dashboard.html", testPage)

	out, err := executeCommand(t, "render", page, "--base-url", server.URL, "--settle", "10ms")
	require.NoError(t, err)
	assert.Contains(t, out, "<!-- morphkit: "+page+" -->")
	assert.Contains(t, out, `<p id="count">42</p>`)
	assert.NotContains(t, out, "loading")
}

func TestRenderCommand_JSONFromURL(t *testing.T) {
	server := fragmentServer(t)
	bridgeFile := writeFile(t, t.TempDir(), "bridge.json", `{"targetElementId":"edit","action":"show"}`)

	out, err := executeCommand(t, "render", server.URL+"/page",
		"--base-url", server.URL, "--settle", "10ms", "-f", "json", "--bridge", bridgeFile)
	require.NoError(t, err)

	var report pageReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, server.URL+"/page", report.Source)
	assert.Equal(t, []string{"stats_frame"}, report.LoadedFrames)
	assert.Empty(t, report.Errors)
	assert.NotContains(t, report.HTML, `class="hidden"`, "the bridge showed the modal")

	var found bool
	for _, inst := range report.Instances {
		if inst.ID == "edit" && inst.Kind == "modal" {
			found = true
			assert.Equal(t, 1, inst.Refs)
		}
	}
	assert.True(t, found, "the modal instance is reported")
}

func TestRenderCommand_OutputDirectory(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.html", `<html><body><p>one</p></body></html>`)
	second := writeFile(t, dir, "second page.html", `<html><body><p>two</p></body></html>`)
	outDir := filepath.Join(dir, "out")

	_, err := executeCommand(t, "render", first, second, "-o", outDir, "--settle", "0s", "-j", "2")
	require.NoError(t, err)

	one, err := os.ReadFile(filepath.Join(outDir, "01-first.html"))
	require.NoError(t, err)
	assert.Contains(t, string(one), "<p>one</p>")
	two, err := os.ReadFile(filepath.Join(outDir, "02-second_page.html"))
	require.NoError(t, err)
	assert.Contains(t, string(two), "<p>two</p>")
}

func TestStreamCommand(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "page.html", `<html><body><div id="flash"></div><ul id="rows"></ul></body></html>`)
	first := writeFile(t, dir, "one.stream", turbostream.NewBuilder().Append("rows", "<li>a</li>").String())
	second := writeFile(t, dir, "two.stream", turbostream.NewBuilder().Append("rows", "<li>b</li>").ToastNotice("Saved").String())

	out, err := executeCommand(t, "stream", page, first, second, "--settle", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, `<ul id="rows"><li>a</li><li>b</li></ul>`)
	assert.Contains(t, out, "Saved")

	_, err = executeCommand(t, "stream", page)
	assert.Error(t, err, "a stream file is required")
}

func TestRenderCommand_Errors(t *testing.T) {
	page := writeFile(t, t.TempDir(), "page.html", `<p>x</p>`)

	_, err := executeCommand(t, "render")
	assert.Error(t, err)

	_, err = executeCommand(t, "render", filepath.Join(t.TempDir(), "missing.html"))
	assert.ErrorContains(t, err, "failed to read")

	_, err = executeCommand(t, "render", page, "-f", "yaml")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = executeCommand(t, "render", page, "--stream", filepath.Join(t.TempDir(), "nope.stream"))
	assert.ErrorContains(t, err, "failed to read")
}
