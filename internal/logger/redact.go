package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	jwtPattern    = regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]+=*`)
)

// Redactor masks secrets in log fields and messages.
type Redactor struct {
	keys     []string
	patterns []*regexp.Regexp
}

// DefaultRedactor hides passwords, tokens, secrets and anything shaped like a JWT.
func DefaultRedactor() *Redactor {
	return &Redactor{
		keys:     []string{"password", "token", "secret", "authorization", "api_key"},
		patterns: []*regexp.Regexp{jwtPattern, bearerPattern},
	}
}

func (r *Redactor) sensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range r.keys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// RedactFields returns a copy of fields with sensitive keys masked.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch {
		case r.sensitive(k):
			out[k] = redacted
		case isString(v):
			out[k] = r.Redact(v.(string))
		default:
			out[k] = v
		}
	}
	return out
}

func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, redacted)
	}
	return s
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}
