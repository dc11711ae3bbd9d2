package cmdmox

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Comparator matches a single argument or stdin value. Display
// representations are part of the contract: they appear verbatim in
// verifier diagnostics.
type Comparator interface {
	Match(value string) bool
	String() string
}

// MatchFunc adapts any func(string) bool into a Comparator.
type MatchFunc func(string) bool

func (f MatchFunc) Match(value string) bool { return f(value) }
func (f MatchFunc) String() string          { return "Predicate(fn)" }

type anyComparator struct{}

func (anyComparator) Match(string) bool { return true }
func (anyComparator) String() string    { return "Any()" }

// Any matches every value.
func Any() Comparator { return anyComparator{} }

// TypeName identifies the conversions IsA can check.
type TypeName string

const (
	TypeInt   TypeName = "int"
	TypeFloat TypeName = "float"
	TypeBool  TypeName = "bool"
)

type isAComparator struct {
	typ TypeName
}

func (c isAComparator) Match(value string) bool {
	switch c.typ {
	case TypeInt:
		_, err := strconv.ParseInt(value, 10, 64)
		return err == nil
	case TypeFloat:
		_, err := strconv.ParseFloat(value, 64)
		return err == nil
	case TypeBool:
		_, err := strconv.ParseBool(value)
		return err == nil
	default:
		return false
	}
}

func (c isAComparator) String() string { return fmt.Sprintf("IsA(%s)", c.typ) }

// IsA matches values convertible to the named type.
func IsA(typ TypeName) Comparator { return isAComparator{typ: typ} }

type regexComparator struct {
	re *regexp.Regexp
}

func (c regexComparator) Match(value string) bool { return c.re.MatchString(value) }
func (c regexComparator) String() string          { return fmt.Sprintf("Regex(%q)", c.re.String()) }

// Regex matches values containing a match of pattern. An invalid
// pattern yields a comparator that never matches and says so.
func Regex(pattern string) Comparator {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return predicateComparator{
			name: fmt.Sprintf("invalid regex %q", pattern),
			fn:   func(string) bool { return false },
		}
	}
	return regexComparator{re: re}
}

type containsComparator struct {
	substring string
}

func (c containsComparator) Match(value string) bool { return strings.Contains(value, c.substring) }
func (c containsComparator) String() string          { return fmt.Sprintf("Contains(%q)", c.substring) }

// Contains matches values containing the substring.
func Contains(substring string) Comparator { return containsComparator{substring: substring} }

type startsWithComparator struct {
	prefix string
}

func (c startsWithComparator) Match(value string) bool { return strings.HasPrefix(value, c.prefix) }
func (c startsWithComparator) String() string          { return fmt.Sprintf("StartsWith(%q)", c.prefix) }

// StartsWith matches values beginning with prefix.
func StartsWith(prefix string) Comparator { return startsWithComparator{prefix: prefix} }

type predicateComparator struct {
	name string
	fn   func(string) bool
}

func (c predicateComparator) Match(value string) bool { return c.fn(value) }
func (c predicateComparator) String() string          { return fmt.Sprintf("Predicate(%s)", c.name) }

// Predicate wraps a custom function with a name used in diagnostics.
func Predicate(name string, fn func(string) bool) Comparator {
	return predicateComparator{name: name, fn: fn}
}
