package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSensitiveEnvKey(t *testing.T) {
	sensitive := []string{
		"API_KEY", "GITHUB_TOKEN", "SECRET", "DB_PASSWORD",
		"AWS_CREDENTIALS", "MY_PASS", "PWD", "pass_2", "MONKEY",
	}
	for _, key := range sensitive {
		assert.True(t, IsSensitiveEnvKey(key), "expected %q to be sensitive", key)
	}

	benign := []string{"PATH", "HOME", "USER", "COMPASS", "LANG", "TERM"}
	for _, key := range benign {
		assert.False(t, IsSensitiveEnvKey(key), "expected %q to be benign", key)
	}
}

func TestRedactEnv(t *testing.T) {
	env := map[string]string{
		"API_KEY": "leaked-secret",
		"HOME":    "/home/u",
	}
	redacted := RedactEnv(env)

	assert.Equal(t, Redacted, redacted["API_KEY"])
	assert.Equal(t, "/home/u", redacted["HOME"])
	assert.Equal(t, "leaked-secret", env["API_KEY"], "input must not be modified")
}

func TestRedactEnv_Nil(t *testing.T) {
	assert.Nil(t, RedactEnv(nil))
}
