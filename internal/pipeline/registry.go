package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TransformerFunc mutates a single field value. Implementations must be
// pure and must not error on unexpected input; returning the value
// unchanged is the correct fallback.
type TransformerFunc func(value any) any

// ValidatorFunc is a pure predicate over a single field value.
type ValidatorFunc func(value any) bool

// Registry is the name→function lookup for transformers and validators
// referenced by cleaning rules. Registering a duplicate name overwrites the
// previous entry; looking up a missing name is not fatal, the rule step
// becomes a no-op with success=false.
type Registry struct {
	mu           sync.RWMutex
	transformers map[string]TransformerFunc
	validators   map[string]ValidatorFunc
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	urlPattern   = regexp.MustCompile(`^https?://`)
	phonePattern = regexp.MustCompile(`^[\d\s\-\+\(\)\.]{7,}$`)
	specialChars = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	nonNumeric   = regexp.MustCompile(`[^0-9.\-]`)
)

// dateLayouts are tried in order when parsing date-ish strings.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"02 Jan 2006",
	"January 2, 2006",
}

// NewRegistry creates a registry pre-seeded with the built-in transformers
// and validators.
func NewRegistry() *Registry {
	r := &Registry{
		transformers: make(map[string]TransformerFunc),
		validators:   make(map[string]ValidatorFunc),
	}

	r.RegisterTransformer("uppercase", func(v any) any {
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
		return v
	})
	r.RegisterTransformer("lowercase", func(v any) any {
		if s, ok := v.(string); ok {
			return strings.ToLower(s)
		}
		return v
	})
	r.RegisterTransformer("trim", func(v any) any {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return v
	})
	r.RegisterTransformer("removeSpecialChars", func(v any) any {
		if s, ok := v.(string); ok {
			return specialChars.ReplaceAllString(s, "")
		}
		return v
	})
	// parseNumber strips non-numeric characters and parses; on failure the
	// original value comes back unchanged. Never errors.
	r.RegisterTransformer("parseNumber", func(v any) any {
		s, ok := v.(string)
		if !ok {
			return v
		}
		stripped := nonNumeric.ReplaceAllString(s, "")
		f, err := strconv.ParseFloat(stripped, 64)
		if err != nil {
			return v
		}
		return f
	})

	r.RegisterValidator("email", func(v any) bool {
		s, ok := v.(string)
		return ok && emailPattern.MatchString(s)
	})
	r.RegisterValidator("url", func(v any) bool {
		s, ok := v.(string)
		return ok && urlPattern.MatchString(s)
	})
	r.RegisterValidator("phone", func(v any) bool {
		s, ok := v.(string)
		return ok && phonePattern.MatchString(s)
	})
	r.RegisterValidator("date", func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := parseDate(s)
		return err == nil
	})

	return r
}

// RegisterTransformer adds or replaces a named transformer.
func (r *Registry) RegisterTransformer(name string, fn TransformerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[name] = fn
}

// RegisterValidator adds or replaces a named validator.
func (r *Registry) RegisterValidator(name string, fn ValidatorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[name] = fn
}

// Transformer looks up a transformer by name.
func (r *Registry) Transformer(name string) (TransformerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.transformers[name]
	return fn, ok
}

// Validator looks up a validator by name.
func (r *Registry) Validator(name string) (ValidatorFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.validators[name]
	return fn, ok
}

// parseDate tries the known layouts in order.
func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}
