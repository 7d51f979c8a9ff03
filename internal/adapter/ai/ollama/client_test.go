package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/talent-match-engine/internal/config"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:        "test",
		OllamaBaseURL: baseURL,
		OllamaModel:   "llama3.1",
	}
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{"response":"{\"score\": 72}","done":true,"prompt_eval_count":40,"eval_count":12}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	gen, err := c.Generate(context.Background(), "prompt", domain.GenerateOptions{Temperature: 0.2, MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, `{"score": 72}`, gen.Text)
	assert.Equal(t, 40, gen.Usage.PromptTokens)
	assert.Equal(t, 12, gen.Usage.CompletionTokens)
	assert.Equal(t, 52, gen.Usage.TotalTokens)
}

func TestGenerate_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.Generate(context.Background(), "prompt", domain.GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_ServerErrorRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"response":"ok","done":true}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	gen, err := c.Generate(context.Background(), "prompt", domain.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", gen.Text)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestGenerate_RateLimited(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.Generate(context.Background(), "prompt", domain.GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestGenerate_ConnectionRefused(t *testing.T) {
	t.Parallel()
	c := New(testConfig("http://127.0.0.1:1"))
	_, err := c.Generate(context.Background(), "prompt", domain.GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestGenerateStream_AssemblesDeltas(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		fmt.Fprintln(w, `{"response":"Hello ","done":false}`)
		fmt.Fprintln(w, `{"response":"world","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true,"prompt_eval_count":5,"eval_count":2}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	ch, err := c.GenerateStream(context.Background(), "prompt", domain.GenerateOptions{})
	require.NoError(t, err)

	var deltas []string
	var final domain.StreamChunk
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		if chunk.Done {
			final = chunk
			break
		}
		deltas = append(deltas, chunk.Delta)
	}
	assert.Equal(t, []string{"Hello ", "world"}, deltas)
	assert.Equal(t, "Hello world", final.Text)
	assert.Equal(t, 7, final.Usage.TotalTokens)
}

func TestGenerateStream_AbandonedConsumerReleasesProducer(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		for {
			fmt.Fprintln(w, `{"response":"delta","done":false}`)
			fl.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := New(testConfig(srv.URL))
	ch, err := c.GenerateStream(ctx, "prompt", domain.GenerateOptions{})
	require.NoError(t, err)

	<-ch // take one delta, then walk away without draining
	cancel()
	time.Sleep(200 * time.Millisecond)

	// Nothing is reading anymore, so the producer must wind down on its
	// own. The first receive here has to observe a closed channel; a
	// pending chunk means a send was left unguarded.
	select {
	case _, open := <-ch:
		assert.False(t, open, "producer was still holding a send after the consumer left")
	case <-time.After(2 * time.Second):
		t.Fatal("producer never closed the stream channel")
	}
}

func TestGenerateStream_UpstreamError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.GenerateStream(context.Background(), "prompt", domain.GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestGenerateStream_SkipsMalformedLines(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `not json`)
		fmt.Fprintln(w, `{"response":"ok","done":false}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	ch, err := c.GenerateStream(context.Background(), "prompt", domain.GenerateOptions{})
	require.NoError(t, err)

	var final domain.StreamChunk
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		if chunk.Done {
			final = chunk
		}
	}
	assert.Equal(t, "ok", final.Text)
}

func TestHealthy(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama3.1"}]}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	assert.True(t, c.Healthy(context.Background()))
}

func TestHealthy_Down(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close()

	c := New(testConfig(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.False(t, c.Healthy(ctx))
}
