package cmdmox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAny(t *testing.T) {
	c := Any()
	assert.True(t, c.Match(""))
	assert.True(t, c.Match("anything"))
	assert.Equal(t, "Any()", c.String())
}

func TestIsA(t *testing.T) {
	cases := []struct {
		typ     TypeName
		value   string
		matches bool
	}{
		{TypeInt, "42", true},
		{TypeInt, "-7", true},
		{TypeInt, "4.2", false},
		{TypeInt, "abc", false},
		{TypeFloat, "4.2", true},
		{TypeFloat, "42", true},
		{TypeFloat, "abc", false},
		{TypeBool, "true", true},
		{TypeBool, "0", true},
		{TypeBool, "maybe", false},
	}
	for _, tc := range cases {
		c := IsA(tc.typ)
		assert.Equal(t, tc.matches, c.Match(tc.value), "IsA(%s).Match(%q)", tc.typ, tc.value)
	}
	assert.Equal(t, "IsA(int)", IsA(TypeInt).String())
}

func TestRegex(t *testing.T) {
	c := Regex(`^v\d+\.\d+$`)
	assert.True(t, c.Match("v1.2"))
	assert.False(t, c.Match("1.2"))
	assert.Contains(t, c.String(), "Regex(")

	// Search semantics: the pattern may match anywhere.
	assert.True(t, Regex(`clone`).Match("git-clone-url"))
}

func TestRegex_InvalidPatternNeverMatches(t *testing.T) {
	c := Regex(`([`)
	assert.False(t, c.Match("anything"))
}

func TestContains(t *testing.T) {
	c := Contains("repo")
	assert.True(t, c.Match("my-repo-name"))
	assert.False(t, c.Match("nothing"))
	assert.Equal(t, `Contains("repo")`, c.String())
}

func TestStartsWith(t *testing.T) {
	c := StartsWith("--")
	assert.True(t, c.Match("--flag"))
	assert.False(t, c.Match("flag"))
	assert.Equal(t, `StartsWith("--")`, c.String())
}

func TestPredicate(t *testing.T) {
	c := Predicate("isShort", func(v string) bool { return len(v) < 4 })
	assert.True(t, c.Match("abc"))
	assert.False(t, c.Match("abcdef"))
	assert.Equal(t, "Predicate(isShort)", c.String())
}

func TestMatchFunc(t *testing.T) {
	c := MatchFunc(func(v string) bool { return strings.HasSuffix(v, ".txt") })
	assert.True(t, c.Match("file.txt"))
	assert.False(t, c.Match("file.go"))
	assert.Equal(t, "Predicate(fn)", c.String())
}
