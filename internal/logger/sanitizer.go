package logger

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sanitizer masks sensitive values in filters and documents to prevent accidental
// logging of secrets. A value is sensitive when its field name matches one of the
// configured names as a whole segment ("password", "user_password", "auth.token").
type Sanitizer struct {
	sensitiveFields []string
	maskValue       string
	// Compiled patterns for faster matching
	patterns []*regexp.Regexp
}

// NewSanitizer creates a new sanitizer with the specified sensitive field names.
// If no fields are provided, a default set of common sensitive field names is used.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		// Default sensitive field names (common patterns)
		sensitiveFields = []string{
			"password", "passwd", "pwd",
			"token", "api_key", "apikey", "api_token",
			"secret", "auth", "authorization",
			"credit_card", "card_number", "cvv", "cvc",
			"ssn", "social_security",
			"private_key", "priv_key",
		}
	}

	patterns := make([]*regexp.Regexp, 0, len(sensitiveFields))
	for _, field := range sensitiveFields {
		pattern := regexp.MustCompile(`(?i)(^|[._])` + regexp.QuoteMeta(field) + `($|[._])`)
		patterns = append(patterns, pattern)
	}

	return &Sanitizer{
		sensitiveFields: sensitiveFields,
		maskValue:       "***REDACTED***",
		patterns:        patterns,
	}
}

// IsSensitive reports whether values under the field name must be masked.
func (s *Sanitizer) IsSensitive(field string) bool {
	for _, pattern := range s.patterns {
		if pattern.MatchString(field) {
			return true
		}
	}
	return false
}

// Mask returns a copy of v with sensitive values replaced by the mask value.
// Mappings and lists are walked recursively; other values are returned as is.
// The original value is not modified.
func (s *Sanitizer) Mask(v any) any {
	switch val := v.(type) {
	case primitive.M:
		return s.maskMap(val)
	case map[string]any:
		return s.maskMap(val)
	case primitive.D:
		return s.maskDoc(val)
	case []primitive.M:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.maskMap(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.maskMap(item)
		}
		return out
	case []primitive.D:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.maskDoc(item)
		}
		return out
	case primitive.A:
		return s.maskList(val)
	case []any:
		return s.maskList(val)
	default:
		return v
	}
}

func (s *Sanitizer) maskMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s.IsSensitive(k) {
			out[k] = s.maskValue
			continue
		}
		out[k] = s.Mask(v)
	}
	return out
}

func (s *Sanitizer) maskDoc(d primitive.D) primitive.D {
	if d == nil {
		return nil
	}
	out := make(primitive.D, len(d))
	for i, e := range d {
		out[i].Key = e.Key
		if s.IsSensitive(e.Key) {
			out[i].Value = s.maskValue
			continue
		}
		out[i].Value = s.Mask(e.Value)
	}
	return out
}

func (s *Sanitizer) maskList(l []any) []any {
	out := make([]any, len(l))
	for i, v := range l {
		out[i] = s.Mask(v)
	}
	return out
}

// Format masks v and converts it to a safe string representation for logging.
// Truncates very long values to prevent log pollution.
func (s *Sanitizer) Format(v any) string {
	if v == nil {
		return "{}"
	}

	str := fmt.Sprintf("%v", s.Mask(v))

	const maxLen = 256
	if len(str) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(str[cut]) {
			cut--
		}
		return str[:cut] + "..."
	}

	return str
}
