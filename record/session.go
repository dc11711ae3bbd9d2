package record

import (
	"errors"
	"sync"
	"time"

	"github.com/cmdmox/cmdmox/ipc"
)

// Session captures passthrough invocations and persists them as a
// fixture file. Lifecycle: Start -> Record (one or more) -> Finalize.
// Finalize is idempotent: the second call returns the same fixture
// without rewriting the file.
type Session struct {
	fixturePath   string
	scrubber      Scrubber
	envAllowlist  []string
	commandFilter map[string]struct{}
	testName      string

	mu         sync.Mutex
	recordings []RecordedInvocation
	started    bool
	finalized  bool
	fixture    *FixtureFile
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithScrubber installs a sanitizer run on every recording before it
// is retained.
func WithScrubber(s Scrubber) SessionOption {
	return func(session *Session) { session.scrubber = s }
}

// WithEnvAllowlist names env keys to always include in recordings.
func WithEnvAllowlist(keys ...string) SessionOption {
	return func(session *Session) {
		session.envAllowlist = append(session.envAllowlist, keys...)
	}
}

// WithCommandFilter restricts recording to the named commands.
func WithCommandFilter(commands ...string) SessionOption {
	return func(session *Session) {
		if session.commandFilter == nil {
			session.commandFilter = make(map[string]struct{}, len(commands))
		}
		for _, cmd := range commands {
			session.commandFilter[cmd] = struct{}{}
		}
	}
}

// WithTestName labels the fixture metadata with the originating test.
func WithTestName(name string) SessionOption {
	return func(session *Session) { session.testName = name }
}

// NewSession creates a session that will persist to fixturePath.
func NewSession(fixturePath string, opts ...SessionOption) *Session {
	s := &Session{fixturePath: fixturePath}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FixturePath returns the destination path.
func (s *Session) FixturePath() string { return s.fixturePath }

// Started reports whether Start has been called.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Start begins the session. Starting a finalized session is an error.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return errors.New("cannot start a finalized recording session")
	}
	s.started = true
	return nil
}

// Record retains one passthrough (invocation, response) pair. Sequence
// assignment and append are atomic so concurrent passthrough
// completions on different IPC workers get gap-free sequence numbers.
func (s *Session) Record(inv *ipc.Invocation, resp *ipc.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return errors.New("recording session has not been started")
	}
	if s.finalized {
		return errors.New("cannot record after the session has been finalized")
	}
	if s.commandFilter != nil {
		if _, ok := s.commandFilter[inv.Command]; !ok {
			return nil
		}
	}

	recording := RecordedInvocation{
		Sequence:  len(s.recordings),
		Command:   inv.Command,
		Args:      append([]string{}, inv.Args...),
		Stdin:     inv.Stdin,
		EnvSubset: FilterEnvSubset(inv.Env, inv.Command, s.envAllowlist),
		Stdout:    resp.Stdout,
		Stderr:    resp.Stderr,
		ExitCode:  resp.ExitCode,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if s.scrubber != nil {
		recording = s.scrubber.Scrub(recording)
	}
	s.recordings = append(s.recordings, recording)
	return nil
}

// Finalize persists the fixture to disk and closes the session.
func (s *Session) Finalize() (*FixtureFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fixture != nil {
		return s.fixture, nil
	}

	fixture := &FixtureFile{
		Version:        SchemaVersion,
		Metadata:       NewFixtureMetadata(s.testName),
		Recordings:     append([]RecordedInvocation{}, s.recordings...),
		ScrubbingRules: []ScrubbingRule{},
	}
	if err := fixture.Save(s.fixturePath); err != nil {
		return nil, err
	}
	s.finalized = true
	s.fixture = fixture
	return fixture, nil
}
