// internal/engine/task_engine_test.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/morphkit/internal/config"
	"github.com/xkilldash9x/morphkit/internal/network"
	"github.com/xkilldash9x/morphkit/internal/turbostream"
	"github.com/xkilldash9x/morphkit/internal/widget"
)

// -- Mock Implementations --

type mockWorker struct {
	renderFunc func(ctx context.Context, job Job) (*Result, error)
}

func (m *mockWorker) RenderPage(ctx context.Context, job Job) (*Result, error) {
	if m.renderFunc != nil {
		return m.renderFunc(ctx, job)
	}
	return &Result{JobID: job.ID}, nil
}

type mockSink struct {
	mock.Mock
	mu      sync.Mutex
	results []*Result
}

func (m *mockSink) Persist(ctx context.Context, result *Result) error {
	args := m.Called(ctx, result)
	m.mu.Lock()
	m.results = append(m.results, result)
	m.mu.Unlock()
	return args.Error(0)
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

func engineConfig(concurrency int, timeout time.Duration) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.EngineCfg.WorkerConcurrency = concurrency
	cfg.EngineCfg.PageTimeout = timeout
	return cfg
}

// -- Test Suite --

func TestNewTaskEngine_Validation(t *testing.T) {
	cfg := config.NewDefaultConfig()
	logger := zap.NewNop()
	sink := &mockSink{}
	worker := &mockWorker{}

	tests := []struct {
		name    string
		build   func() (*TaskEngine, error)
		wantErr string
	}{
		{"nil config", func() (*TaskEngine, error) { return NewTaskEngine(nil, logger, sink, worker) }, "config cannot be nil"},
		{"nil logger", func() (*TaskEngine, error) { return NewTaskEngine(cfg, nil, sink, worker) }, "logger cannot be nil"},
		{"nil sink", func() (*TaskEngine, error) { return NewTaskEngine(cfg, logger, nil, worker) }, "sink cannot be nil"},
		{"nil worker", func() (*TaskEngine, error) { return NewTaskEngine(cfg, logger, sink, nil) }, "worker cannot be nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestTaskEngine_StartStop(t *testing.T) {
	sink := &mockSink{}
	sink.On("Persist", mock.Anything, mock.AnythingOfType("*engine.Result")).Return(nil)

	engine, err := NewTaskEngine(engineConfig(2, 5*time.Second), zap.NewNop(), sink, &mockWorker{})
	require.NoError(t, err)

	jobs := make(chan Job, 10)
	engine.Start(context.Background(), jobs)
	engine.Start(context.Background(), jobs)

	for i := 0; i < 3; i++ {
		jobs <- Job{ID: fmt.Sprintf("job-%d", i)}
	}
	close(jobs)
	engine.Stop()

	assert.Equal(t, 3, sink.count())
	sink.AssertNumberOfCalls(t, "Persist", 3)
}

func TestTaskEngine_WorkerErrorIsNotPersisted(t *testing.T) {
	sink := &mockSink{}
	worker := &mockWorker{renderFunc: func(context.Context, Job) (*Result, error) {
		return nil, errors.New("page exploded")
	}}
	engine, err := NewTaskEngine(engineConfig(1, 0), zap.NewNop(), sink, worker)
	require.NoError(t, err)

	jobs := make(chan Job, 1)
	engine.Start(context.Background(), jobs)
	jobs <- Job{ID: "bad"}
	close(jobs)
	engine.Stop()

	sink.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
}

func TestTaskEngine_PageTimeout(t *testing.T) {
	sink := &mockSink{}
	worker := &mockWorker{renderFunc: func(ctx context.Context, _ Job) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	engine, err := NewTaskEngine(engineConfig(1, 20*time.Millisecond), zap.NewNop(), sink, worker)
	require.NoError(t, err)

	jobs := make(chan Job, 1)
	engine.Start(context.Background(), jobs)
	jobs <- Job{ID: "slow"}
	close(jobs)

	done := make(chan struct{})
	go func() {
		engine.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after the page timed out")
	}
	assert.Zero(t, sink.count())
}

func TestTaskEngine_ContextCancellation(t *testing.T) {
	sink := &mockSink{}
	engine, err := NewTaskEngine(engineConfig(3, 0), zap.NewNop(), sink, &mockWorker{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	jobs := make(chan Job)
	engine.Start(ctx, jobs)
	cancel()
	engine.Stop()
	assert.Zero(t, sink.count())
}

func TestTaskEngine_SinkFailureIsLogged(t *testing.T) {
	sink := &mockSink{}
	sink.On("Persist", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	engine, err := NewTaskEngine(engineConfig(1, 0), zap.NewNop(), sink, &mockWorker{})
	require.NoError(t, err)

	jobs := make(chan Job, 1)
	engine.Start(context.Background(), jobs)
	jobs <- Job{ID: "j"}
	close(jobs)
	engine.Stop()
	sink.AssertExpectations(t)
}

func TestPageWorker_RendersJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = turbostream.NewBuilder().
			LazyFrames(map[string]string{"stats_frame": `<p id="count">7</p>`}).
			WriteTo(w)
	}))
	defer server.Close()

	cfg := config.NewDefaultConfig()
	cfg.SetNetworkBaseURL(server.URL)
	cfg.EngineCfg.SettleTime = time.Second
	logger := zaptest.NewLogger(t)
	fetcher, err := network.NewFetcher(cfg.Network(), nil, logger)
	require.NoError(t, err)

	worker := NewPageWorker(cfg, logger, fetcher)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := worker.RenderPage(ctx, Job{
		ID:      "dash",
		Source:  "dashboard.html",
		Markup:  dashboard,
		Streams: []string{turbostream.NewBuilder().ToastAlert("Careful").Remove("missing").String()},
		Bridge:  []byte(`[{"targetElementId":"edit","action":"show"}]`),
	})
	require.NoError(t, err)

	assert.Equal(t, "dash", result.JobID)
	assert.Contains(t, result.HTML, `<p id="count">7</p>`)
	assert.Contains(t, result.HTML, "Careful")
	assert.Equal(t, []string{"stats_frame"}, result.LoadedFrames)
	require.Len(t, result.Errors, 1, "the failed remove is recorded")
	assert.Contains(t, result.Errors[0], "missing")

	var modal bool
	for _, e := range result.Instances {
		if e.Key.ID == "edit" && e.Key.Kind == widget.KindModal {
			modal = true
			assert.Equal(t, 1, e.Refs)
		}
	}
	assert.True(t, modal)
	assert.False(t, result.Timestamp.IsZero())
}

func TestPageWorker_BadMarkupStillParses(t *testing.T) {
	worker := NewPageWorker(config.NewDefaultConfig(), nil, &stubFetcher{})
	result, err := worker.RenderPage(context.Background(), Job{ID: "x", Markup: "<p>unclosed"})
	require.NoError(t, err)
	assert.Contains(t, result.HTML, "<p>unclosed</p>")
	assert.Empty(t, result.Instances)
}
