package cmdmox

import (
	"fmt"
	"strings"

	"github.com/cmdmox/cmdmox/ipc"
)

// runVerifiers executes the three sub-verifiers in order over the
// frozen journal and returns every discrepancy found. Nothing here
// short-circuits: a verification failure is reported as one aggregate.
func runVerifiers(entries []*JournalEntry, doubles []*CommandDouble, ordered []*Expectation) []error {
	var failures []error
	failures = append(failures, verifyUnexpected(entries, doubles)...)
	failures = append(failures, verifyOrder(entries, ordered)...)
	failures = append(failures, verifyCounts(doubles)...)
	return failures
}

// verifyUnexpected reports journal entries that matched no expectation,
// with a diff-style explanation naming the closest candidate. Sensitive
// env values are redacted.
func verifyUnexpected(entries []*JournalEntry, doubles []*CommandDouble) []error {
	var failures []error
	for _, entry := range entries {
		if entry.Matched() {
			continue
		}
		inv := entry.Invocation

		var b strings.Builder
		fmt.Fprintf(&b, "unexpected command invocation: %s", DescribeInvocation(inv))
		if inv.Stdin != "" {
			fmt.Fprintf(&b, "\n  stdin: %q", shortenForDiag(inv.Stdin))
		}
		fmt.Fprintf(&b, "\n  env: %v", ipc.RedactEnv(relevantEnv(inv.Env, doubles, inv.Command)))

		candidates := candidatesFor(doubles, inv.Command)
		if len(candidates) == 0 {
			b.WriteString("\n  no expectation is registered for this command")
		} else {
			b.WriteString("\n  candidate expectations:")
			for _, d := range candidates {
				fmt.Fprintf(&b, "\n    %s: %s", d.expectation.Describe(), d.expectation.ExplainMismatch(inv))
			}
		}
		failures = append(failures, &UnexpectedCommandError{Msg: b.String()})
	}
	return failures
}

// verifyOrder confirms that invocations matching ordered expectations
// appear in declaration order, reporting the first divergence with both
// the declared and the observed sequences.
func verifyOrder(entries []*JournalEntry, ordered []*Expectation) []error {
	if len(ordered) == 0 {
		return nil
	}

	// Expand each ordered expectation by its count so times(2).InOrder()
	// claims two consecutive slots.
	var sequence []*Expectation
	for _, exp := range ordered {
		for i := 0; i < exp.Count(); i++ {
			sequence = append(sequence, exp)
		}
	}

	var observed []string
	cursor := 0
	for _, entry := range entries {
		inv := entry.Invocation
		if cursor < len(sequence) && sequence[cursor].Matches(inv) {
			observed = append(observed, DescribeInvocation(inv))
			cursor++
			continue
		}
		// An invocation that skips the cursor to satisfy a later ordered
		// expectation is out of order, unless an any-order expectation
		// also accounts for it.
		if entry.Matched() && entry.Double.expectation.Ordered() {
			for j := cursor + 1; j < len(sequence); j++ {
				if sequence[j].Matches(inv) {
					observed = append(observed, DescribeInvocation(inv))
					return []error{&UnfulfilledExpectationError{Msg: orderDivergence(sequence, cursor, observed)}}
				}
			}
		}
	}

	if cursor != len(sequence) {
		remaining := make([]string, 0, len(sequence)-cursor)
		for _, exp := range sequence[cursor:] {
			remaining = append(remaining, exp.Describe())
		}
		return []error{&UnfulfilledExpectationError{
			Msg: fmt.Sprintf("expected commands not called in order: [%s]", strings.Join(remaining, ", ")),
		}}
	}
	return nil
}

func orderDivergence(sequence []*Expectation, cursor int, observed []string) string {
	declared := make([]string, len(sequence))
	for i, exp := range sequence {
		declared[i] = exp.Describe()
	}
	return fmt.Sprintf(
		"calls out of order: expected %s next\n  declared order: [%s]\n  observed so far: [%s]",
		sequence[cursor].Describe(),
		strings.Join(declared, ", "),
		strings.Join(observed, ", "),
	)
}

// verifyCounts compares recorded call counts against declared counts
// for every double that verification requires: mocks, plus anything
// with an explicit Times.
func verifyCounts(doubles []*CommandDouble) []error {
	var failures []error
	for _, d := range doubles {
		if !d.isExpected() {
			continue
		}
		expected := d.expectation.Count()
		invocations := d.Invocations()
		actual := len(invocations)

		switch {
		case actual < expected:
			failures = append(failures, &UnfulfilledExpectationError{
				Msg: fmt.Sprintf("expected %s to be called %d time(s) but got %d",
					d.expectation.Describe(), expected, actual),
			})
		case actual > expected:
			var calls []string
			for _, inv := range invocations {
				calls = append(calls, DescribeInvocation(inv))
			}
			failures = append(failures, &UnexpectedCommandError{
				Msg: fmt.Sprintf("%s called more than expected (%d > %d)\n  observed: [%s]",
					d.expectation.Describe(), actual, expected, strings.Join(calls, ", ")),
			})
		}
	}
	return failures
}

func candidatesFor(doubles []*CommandDouble, command string) []*CommandDouble {
	var out []*CommandDouble
	for _, d := range doubles {
		if d.name == command {
			out = append(out, d)
		}
	}
	return out
}

// relevantEnv trims the env diagnostic to keys any candidate declares,
// falling back to the full snapshot when nothing is declared. Full
// environments are noise in failure output.
func relevantEnv(env map[string]string, doubles []*CommandDouble, command string) map[string]string {
	keys := map[string]struct{}{}
	for _, d := range candidatesFor(doubles, command) {
		for k := range d.expectation.Env() {
			keys[k] = struct{}{}
		}
	}
	if len(keys) == 0 {
		return env
	}
	out := make(map[string]string, len(keys))
	for k := range keys {
		if v, ok := env[k]; ok {
			out[k] = v
		}
	}
	return out
}

func shortenForDiag(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit-1] + "…"
}
