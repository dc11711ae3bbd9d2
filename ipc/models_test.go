package ipc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeInvocation_RoundTrip(t *testing.T) {
	inv := &Invocation{
		Command:      "git",
		Args:         []string{"clone", "repo"},
		Stdin:        "input",
		Env:          map[string]string{"HOME": "/home/u"},
		InvocationID: "abc123",
	}

	line, err := EncodeInvocation(inv)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(line), "\n"), "messages are newline framed")

	decoded, err := DecodeRequest(line)
	require.NoError(t, err)

	got, ok := decoded.(*Invocation)
	require.True(t, ok, "expected an *Invocation")
	assert.Equal(t, "git", got.Command)
	assert.Equal(t, []string{"clone", "repo"}, got.Args)
	assert.Equal(t, "input", got.Stdin)
	assert.Equal(t, "abc123", got.InvocationID)
	assert.Equal(t, "/home/u", got.Env["HOME"])
}

func TestDecodeRequest_ReplacesInvalidUTF8(t *testing.T) {
	inv := &Invocation{
		Command: "cat",
		Args:    []string{"ok"},
		Stdin:   "bad\xffbyte",
		Env:     map[string]string{},
	}
	// Encoding already escapes the bytes; the decode boundary replaces
	// whatever survives as invalid UTF-8.
	line, err := EncodeInvocation(inv)
	require.NoError(t, err)

	decoded, err := DecodeRequest(line)
	require.NoError(t, err)
	got := decoded.(*Invocation)
	assert.Equal(t, "bad�byte", got.Stdin)
}

func TestDecodeRequest_PassthroughResult(t *testing.T) {
	res := &PassthroughResult{
		InvocationID: "id-1",
		Stdout:       "out",
		Stderr:       "err",
		ExitCode:     3,
	}
	line, err := EncodePassthroughResult(res)
	require.NoError(t, err)

	decoded, err := DecodeRequest(line)
	require.NoError(t, err)
	got, ok := decoded.(*PassthroughResult)
	require.True(t, ok)
	assert.Equal(t, "id-1", got.InvocationID)
	assert.Equal(t, 3, got.ExitCode)
}

func TestDecodeRequest_Malformed(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"not json", "{nope"},
		{"unknown kind", `{"kind":"bogus"}`},
		{"missing command", `{"kind":"invocation","args":[]}`},
		{"missing invocation id", `{"kind":"passthrough-result","stdout":""}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tc.line))
			require.Error(t, err)
			var perr *ProtocolError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestDecodeResponse_Passthrough(t *testing.T) {
	resp := &Response{
		Passthrough: &PassthroughRequest{
			InvocationID:   "id-2",
			LookupPath:     "/usr/bin:/bin",
			ExtraEnv:       map[string]string{"GIT_TRACE": "1"},
			TimeoutSeconds: 12.5,
		},
	}
	line, err := EncodeResponse(resp)
	require.NoError(t, err)

	got, err := DecodeResponse(line)
	require.NoError(t, err)
	require.NotNil(t, got.Passthrough)
	assert.Equal(t, "id-2", got.Passthrough.InvocationID)
	assert.Equal(t, "/usr/bin:/bin", got.Passthrough.LookupPath)
	assert.InDelta(t, 12.5, got.Passthrough.TimeoutSeconds, 1e-9)
}

func TestPassthroughRequest_TimeoutDefaults(t *testing.T) {
	r := &PassthroughRequest{}
	assert.Equal(t, DefaultPassthroughTimeout, r.Timeout())

	r.TimeoutSeconds = 2
	assert.Equal(t, "2s", r.Timeout().String())
}

func TestInvocation_Apply(t *testing.T) {
	inv := &Invocation{Command: "hi", Args: []string{}}
	inv.Apply(&Response{Stdout: "o", Stderr: "e", ExitCode: 7, Env: map[string]string{"X": "1"}})

	assert.Equal(t, "o", inv.Stdout)
	assert.Equal(t, "e", inv.Stderr)
	assert.Equal(t, 7, inv.ExitCode)
	assert.Empty(t, inv.Env, "response env overrides are not copied onto the snapshot")
}

func TestInvocation_Clone_IsDeep(t *testing.T) {
	inv := &Invocation{
		Command: "hi",
		Args:    []string{"a"},
		Env:     map[string]string{"K": "v"},
	}
	clone := inv.Clone()
	clone.Args[0] = "mutated"
	clone.Env["K"] = "mutated"

	assert.Equal(t, "a", inv.Args[0])
	assert.Equal(t, "v", inv.Env["K"])
}

func TestInvocation_String_RedactsSecrets(t *testing.T) {
	inv := &Invocation{
		Command: "deploy",
		Args:    []string{"--now"},
		Env:     map[string]string{"API_KEY": "leaked-secret", "HOME": "/home/u"},
	}
	repr := inv.String()
	assert.NotContains(t, repr, "leaked-secret")
	assert.Contains(t, repr, Redacted)
	assert.Contains(t, repr, "/home/u")
}

func TestResponse_Clone_DoesNotShareEnv(t *testing.T) {
	resp := &Response{Env: map[string]string{"A": "1"}}
	clone := resp.Clone()
	clone.Env["A"] = "2"
	assert.Equal(t, "1", resp.Env["A"])
}
