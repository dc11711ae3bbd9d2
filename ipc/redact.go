package ipc

import (
	"regexp"
	"strings"
)

// The secrets lexicon. Env keys matching any of these, either as a
// substring or as a delimited word, are redacted in all diagnostics.
var sensitiveSubstrings = []string{"secret", "token", "key", "password"}

var secretKeyRe = regexp.MustCompile(
	`(?i)(^|[_-])(KEY|TOKEN|SECRET|PASSWORD|CREDENTIALS?|PASS|PWD)([_-]|[0-9]|$)`,
)

// Redacted replaces a sensitive env value in diagnostics.
const Redacted = "***"

// IsSensitiveEnvKey reports whether key matches the secrets lexicon.
func IsSensitiveEnvKey(key string) bool {
	lower := strings.ToLower(key)
	for _, tok := range sensitiveSubstrings {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return secretKeyRe.MatchString(key)
}

// RedactEnv returns a copy of env with sensitive values replaced by
// Redacted. The input is never modified.
func RedactEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if IsSensitiveEnvKey(k) {
			out[k] = Redacted
		} else {
			out[k] = v
		}
	}
	return out
}
