package logging

import "strings"

// ObfuscateSecret returns a redacted form showing only a normalized
// prefix and, for long enough secrets, the last 4 characters: enough
// for an operator to recognize which credential is in play without the
// error log ever holding the live value.
func ObfuscateSecret(secret string) string {
	if secret == "" {
		return ""
	}
	prefix := secretPrefix(secret)
	suffix := ""
	if len(secret) > len(prefix)+8 {
		suffix = secret[len(secret)-4:]
	}
	return prefix + "..." + suffix
}

func secretPrefix(secret string) string {
	mappings := []struct{ match, output string }{
		{"sk-ant-api03-", "sk-ant-"},
		{"sk-ant-", "sk-ant-"},
		{"Bearer ", "Bearer "},
		{"sk-", "sk-"},
	}
	for _, m := range mappings {
		if strings.HasPrefix(secret, m.match) {
			return m.output
		}
	}
	if idx := strings.Index(secret, "-"); idx > 0 {
		return secret[:idx+1]
	}
	return ""
}
