//go:build !windows

package ipc

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, handler InvocationHandler, passthrough PassthroughResultHandler) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "ipc.sock")
	if handler == nil {
		handler = func(inv *Invocation) (*Response, error) {
			return &Response{Stdout: inv.Command}, nil
		}
	}
	if passthrough == nil {
		passthrough = func(res *PassthroughResult) (*Response, error) {
			return nil, errors.New("unhandled passthrough result")
		}
	}

	srv, err := NewServer(socketPath, time.Second, handler, passthrough)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	t.Setenv(SocketEnv, socketPath)
	return socketPath
}

func TestServer_InvocationRoundTrip(t *testing.T) {
	startTestServer(t, func(inv *Invocation) (*Response, error) {
		return &Response{Stdout: "hello " + inv.Args[0], ExitCode: 0}, nil
	}, nil)

	resp, err := InvokeServer(&Invocation{
		Command: "hi",
		Args:    []string{"world"},
		Env:     map[string]string{},
	}, time.Second, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Stdout)
	assert.Equal(t, 0, resp.ExitCode)
}

func TestServer_PassthroughResultRoundTrip(t *testing.T) {
	startTestServer(t, nil, func(res *PassthroughResult) (*Response, error) {
		return &Response{Stdout: res.Stdout, ExitCode: res.ExitCode}, nil
	})

	resp, err := ReportPassthroughResult(&PassthroughResult{
		InvocationID: "id-1",
		Stdout:       "real output",
		ExitCode:     4,
	}, time.Second, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, "real output", resp.Stdout)
	assert.Equal(t, 4, resp.ExitCode)
}

func TestServer_HandlerErrorBecomesFailureResponse(t *testing.T) {
	startTestServer(t, func(inv *Invocation) (*Response, error) {
		return nil, errors.New("boom")
	}, nil)

	resp, err := InvokeServer(&Invocation{Command: "x", Args: []string{}, Env: map[string]string{}},
		time.Second, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ExitCode)
	assert.Contains(t, resp.Stderr, "boom")
}

func TestServer_HandlerPanicBecomesFailureResponse(t *testing.T) {
	startTestServer(t, func(inv *Invocation) (*Response, error) {
		panic("kaboom")
	}, nil)

	resp, err := InvokeServer(&Invocation{Command: "x", Args: []string{}, Env: map[string]string{}},
		time.Second, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ExitCode)
	assert.Contains(t, resp.Stderr, "kaboom")
}

func TestServer_ConcurrentClients(t *testing.T) {
	startTestServer(t, func(inv *Invocation) (*Response, error) {
		return &Response{Stdout: inv.Args[0]}, nil
	}, nil)

	const clients = 16
	var wg sync.WaitGroup
	errs := make([]error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			resp, err := InvokeServer(&Invocation{
				Command: "echo",
				Args:    []string{"payload"},
				Env:     map[string]string{},
			}, time.Second, DefaultRetryConfig())
			if err == nil && resp.Stdout != "payload" {
				err = errors.New("unexpected stdout")
			}
			errs[n] = err
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "client %d", i)
	}
}

func TestServer_StartTwiceFails(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "ipc.sock")
	srv, err := NewServer(socketPath, time.Second,
		func(*Invocation) (*Response, error) { return &Response{}, nil },
		func(*PassthroughResult) (*Response, error) { return &Response{}, nil })
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	assert.Error(t, srv.Start())
}

func TestServer_RefusesLiveEndpoint(t *testing.T) {
	socketPath := startTestServer(t, nil, nil)

	other, err := NewServer(socketPath, time.Second,
		func(*Invocation) (*Response, error) { return &Response{}, nil },
		func(*PassthroughResult) (*Response, error) { return &Response{}, nil })
	require.NoError(t, err)
	assert.Error(t, other.Start(), "a second server must not steal a live endpoint")
}

func TestServer_StopIsIdempotent(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "ipc.sock")
	srv, err := NewServer(socketPath, time.Second,
		func(*Invocation) (*Response, error) { return &Response{}, nil },
		func(*PassthroughResult) (*Response, error) { return &Response{}, nil })
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	srv.Stop()
	srv.Stop()
}

func TestClient_MissingSocketEnv(t *testing.T) {
	t.Setenv(SocketEnv, "")

	_, err := InvokeServer(&Invocation{Command: "x", Args: []string{}, Env: map[string]string{}},
		time.Second, DefaultRetryConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), SocketEnv)
}

func TestClient_ConnectRetriesExhausted(t *testing.T) {
	t.Setenv(SocketEnv, filepath.Join(t.TempDir(), "nobody-home.sock"))

	start := time.Now()
	_, err := InvokeServer(&Invocation{Command: "x", Args: []string{}, Env: map[string]string{}},
		200*time.Millisecond, RetryConfig{Retries: 2, Backoff: 10 * time.Millisecond, Jitter: 0})
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "connect", terr.Op)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRetryConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultRetryConfig().Validate())
	assert.Error(t, RetryConfig{Retries: 0, Backoff: time.Millisecond}.Validate())
	assert.Error(t, RetryConfig{Retries: 1, Backoff: -time.Millisecond}.Validate())
	assert.Error(t, RetryConfig{Retries: 1, Jitter: 2}.Validate())
}

func TestRetryConfig_RetryDelayNeverZero(t *testing.T) {
	cfg := RetryConfig{Retries: 3, Backoff: 0, Jitter: 0}
	for attempt := 0; attempt < 3; attempt++ {
		assert.GreaterOrEqual(t, cfg.RetryDelay(attempt), time.Millisecond)
	}
}
