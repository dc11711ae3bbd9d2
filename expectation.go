package cmdmox

import (
	"fmt"
	"strings"

	"github.com/cmdmox/cmdmox/ipc"
)

// Expectation declares how a command should be invoked: exact args or
// per-position comparators, stdin, required env, count, and ordering
// discipline. An Expectation is configured during RECORD, frozen during
// REPLAY, and consumed by the verifier during VERIFY.
type Expectation struct {
	name      string
	args      []string
	matchArgs []Comparator
	stdin     *stdinMatcher
	env       map[string]string
	count     int
	countSet  bool
	ordered   bool
}

type stdinMatcher struct {
	exact      string
	comparator Comparator
}

func newExpectation(name string) *Expectation {
	return &Expectation{name: name, count: 1, env: map[string]string{}}
}

// Name returns the command this expectation is bound to.
func (e *Expectation) Name() string { return e.name }

// Count returns the required invocation count (default 1).
func (e *Expectation) Count() int { return e.count }

// Ordered reports whether the expectation participates in ordered
// verification.
func (e *Expectation) Ordered() bool { return e.ordered }

// Env returns the expectation's declared env overrides.
func (e *Expectation) Env() map[string]string { return e.env }

// Matches reports whether invocation satisfies this expectation.
func (e *Expectation) Matches(inv *ipc.Invocation) bool {
	return e.matchesCommand(inv) &&
		e.matchesArgs(inv) &&
		e.matchesStdin(inv) &&
		e.matchesEnv(inv)
}

func (e *Expectation) matchesCommand(inv *ipc.Invocation) bool {
	return inv.Command == e.name
}

func (e *Expectation) matchesArgs(inv *ipc.Invocation) bool {
	if e.args != nil && !equalArgs(inv.Args, e.args) {
		return false
	}
	if e.matchArgs != nil {
		if len(inv.Args) != len(e.matchArgs) {
			return false
		}
		for i, c := range e.matchArgs {
			if !c.Match(inv.Args[i]) {
				return false
			}
		}
	}
	return true
}

func (e *Expectation) matchesStdin(inv *ipc.Invocation) bool {
	switch {
	case e.stdin == nil:
		return true
	case e.stdin.comparator != nil:
		return e.stdin.comparator.Match(inv.Stdin)
	default:
		return inv.Stdin == e.stdin.exact
	}
}

// matchesEnv checks a subset match of the declared env overrides
// against the invocation env snapshot.
func (e *Expectation) matchesEnv(inv *ipc.Invocation) bool {
	for key, want := range e.env {
		if inv.Env[key] != want {
			return false
		}
	}
	return true
}

// ExplainMismatch returns the first reason invocation fails this
// expectation, in diff style with sensitive env values redacted.
func (e *Expectation) ExplainMismatch(inv *ipc.Invocation) string {
	if !e.matchesCommand(inv) {
		return fmt.Sprintf("command %q != %q", inv.Command, e.name)
	}
	if e.args != nil && !equalArgs(inv.Args, e.args) {
		return fmt.Sprintf("arguments %q != %q", inv.Args, e.args)
	}
	if e.matchArgs != nil {
		if len(inv.Args) != len(e.matchArgs) {
			return fmt.Sprintf("expected %d args but got %d", len(e.matchArgs), len(inv.Args))
		}
		for i, c := range e.matchArgs {
			if !c.Match(inv.Args[i]) {
				return fmt.Sprintf("arg[%d]=%q failed %s", i, inv.Args[i], c)
			}
		}
	}
	if e.stdin != nil {
		if e.stdin.comparator != nil {
			if !e.stdin.comparator.Match(inv.Stdin) {
				return fmt.Sprintf("stdin %q failed %s", inv.Stdin, e.stdin.comparator)
			}
		} else if inv.Stdin != e.stdin.exact {
			return fmt.Sprintf("stdin %q != %q", inv.Stdin, e.stdin.exact)
		}
	}
	for key, want := range e.env {
		if actual, ok := inv.Env[key]; !ok || actual != want {
			wantRepr, actualRepr := want, actual
			if ipc.IsSensitiveEnvKey(key) {
				wantRepr = ipc.Redacted
				if ok {
					actualRepr = ipc.Redacted
				}
			}
			if !ok {
				return fmt.Sprintf("env[%q] missing, expected %q", key, wantRepr)
			}
			return fmt.Sprintf("env[%q]=%q != %q", key, actualRepr, wantRepr)
		}
	}
	return "args or stdin mismatch"
}

// Describe renders the expectation the way diagnostics quote it, e.g.
// git('clone', 'repo').
func (e *Expectation) Describe() string {
	var parts []string
	switch {
	case e.args != nil:
		for _, a := range e.args {
			parts = append(parts, fmt.Sprintf("'%s'", a))
		}
	case e.matchArgs != nil:
		for _, c := range e.matchArgs {
			parts = append(parts, c.String())
		}
	}
	desc := fmt.Sprintf("%s(%s)", e.name, strings.Join(parts, ", "))
	if e.stdin != nil {
		if e.stdin.comparator != nil {
			desc += fmt.Sprintf(" stdin=%s", e.stdin.comparator)
		} else {
			desc += fmt.Sprintf(" stdin=%q", e.stdin.exact)
		}
	}
	if len(e.env) > 0 {
		desc += fmt.Sprintf(" env=%v", ipc.RedactEnv(e.env))
	}
	return desc
}

func equalArgs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DescribeInvocation renders an observed call in the same shape
// Describe uses for expectations.
func DescribeInvocation(inv *ipc.Invocation) string {
	parts := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		parts[i] = fmt.Sprintf("'%s'", a)
	}
	return fmt.Sprintf("%s(%s)", inv.Command, strings.Join(parts, ", "))
}
