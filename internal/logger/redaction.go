package logger

import (
	"io"
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

var (
	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
		regexp.MustCompile(`sk-(proj-)?[a-zA-Z0-9_-]{20,}`),
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
	}

	// jsonField matches one string field of a JSON log line.
	jsonField = regexp.MustCompile(`"([A-Za-z0-9_.-]+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// IsSecretKey reports whether a config or log field name holds a credential.
func IsSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"api_key", "apikey", "secret", "password"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	// max_tokens is not a secret
	return key == "token" || strings.HasSuffix(key, "_token")
}

// Redactor masks provider credentials and secret-named fields in log output.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for provider keys and bearer tokens.
func NewRedactor() *Redactor {
	patterns := make([]*regexp.Regexp, len(credentialPatterns))
	copy(patterns, credentialPatterns)
	return &Redactor{patterns: patterns}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks secret-named JSON fields first, then every credential pattern.
func (r *Redactor) Redact(s string) string {
	result := jsonField.ReplaceAllStringFunc(s, func(field string) string {
		m := jsonField.FindStringSubmatch(field)
		if !IsSecretKey(m[1]) || m[2] == "" {
			return field
		}
		return `"` + m[1] + `":"` + redactedValue + `"`
	})
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, redactedValue)
	}
	return result
}

// Wrap returns a writer that redacts each write before passing it on.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat the shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (n int, err error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
