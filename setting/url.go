package setting

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// URL is a parsed settings string with typed query accessors. Accessors mark
// their parameter as consumed; Registry.Open rejects settings that carry
// parameters no driver looked at, so typos surface instead of being ignored.
type URL struct {
	u        *url.URL
	query    url.Values
	consumed map[string]bool
}

// Parse validates raw and wraps it for typed access.
func Parse(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty settings string")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse settings URL: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("settings URL %q missing scheme", raw)
	}
	return &URL{
		u:        u,
		query:    u.Query(),
		consumed: make(map[string]bool),
	}, nil
}

// Scheme returns the lower-cased URL scheme.
func (s *URL) Scheme() string { return strings.ToLower(s.u.Scheme) }

// Host returns the host[:port] component.
func (s *URL) Host() string { return strings.TrimSpace(s.u.Host) }

// Hostname returns the host without any port.
func (s *URL) Hostname() string { return s.u.Hostname() }

// Port returns the port component, or empty when absent.
func (s *URL) Port() string { return s.u.Port() }

// Path returns the path with surrounding slashes trimmed.
func (s *URL) Path() string {
	return strings.Trim(strings.TrimPrefix(s.u.Path, "/"), "/")
}

// User returns the username component, or empty when absent.
func (s *URL) User() string {
	if s.u.User == nil {
		return ""
	}
	return s.u.User.Username()
}

// Password returns the password component when present.
func (s *URL) Password() (string, bool) {
	if s.u.User == nil {
		return "", false
	}
	return s.u.User.Password()
}

// Raw returns the URL in its original form.
func (s *URL) Raw() string { return s.u.String() }

// Redacted returns the URL with any password replaced, safe for logs.
func (s *URL) Redacted() string { return s.u.Redacted() }

// SplitPath splits the path into its first segment and the remainder, the
// common bucket/prefix shape of object store settings.
func (s *URL) SplitPath() (first, rest string) {
	path := s.Path()
	if path == "" {
		return "", ""
	}
	parts := strings.SplitN(path, "/", 2)
	first = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		rest = strings.Trim(parts[1], "/")
	}
	return first, rest
}

// String returns the raw query parameter, resolving env: indirection, and
// def when the parameter is absent.
func (s *URL) String(name, def string) string {
	val, ok := s.lookup(name)
	if !ok {
		return def
	}
	return val
}

// Secret behaves like String but additionally consults the supplied
// environment fallback chain when the parameter is absent.
func (s *URL) Secret(name string, envNames ...string) string {
	if val, ok := s.lookup(name); ok {
		return val
	}
	return FirstEnv(envNames...)
}

// Bool parses the named parameter as a boolean, returning def when absent or
// malformed.
func (s *URL) Bool(name string, def bool) bool {
	val, ok := s.lookup(name)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}

// Int parses the named parameter as an int, returning def when absent or
// malformed.
func (s *URL) Int(name string, def int) int {
	val, ok := s.lookup(name)
	if !ok {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

// Int64 parses the named parameter as an int64, returning def when absent or
// malformed.
func (s *URL) Int64(name string, def int64) int64 {
	val, ok := s.lookup(name)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

// Duration parses the named parameter with time.ParseDuration, returning def
// when absent or malformed.
func (s *URL) Duration(name string, def time.Duration) time.Duration {
	val, ok := s.lookup(name)
	if !ok {
		return def
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return parsed
}

// WithoutQuery renders the URL with the named query parameters removed.
// Drivers that delegate parsing to a vendor SDK (go-redis, paho) use this to
// hand over the URL minus svckit-only parameters.
func (s *URL) WithoutQuery(names ...string) string {
	clone := *s.u
	query := clone.Query()
	for _, name := range names {
		query.Del(name)
	}
	clone.RawQuery = query.Encode()
	return clone.String()
}

// DelegateQuery marks every query parameter as consumed. Drivers that hand
// the URL to a vendor parser (go-redis, paho) call this; the vendor parser
// then owns validation of the remaining parameters.
func (s *URL) DelegateQuery() {
	for name := range s.query {
		s.consumed[name] = true
	}
}

// UnconsumedQuery reports query parameters no accessor touched, sorted.
func (s *URL) UnconsumedQuery() []string {
	var unknown []string
	for name := range s.query {
		if !s.consumed[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func (s *URL) lookup(name string) (string, bool) {
	s.consumed[name] = true
	if !s.query.Has(name) {
		return "", false
	}
	return Resolve(s.query.Get(name)), true
}

// Resolve expands env: indirection in a settings value. "env:NAME" resolves
// through os.Getenv; anything else passes through unchanged.
func Resolve(val string) string {
	if name, ok := strings.CutPrefix(val, "env:"); ok {
		return strings.TrimSpace(os.Getenv(strings.TrimSpace(name)))
	}
	return val
}

// FirstEnv returns the first non-empty value among the named environment
// variables.
func FirstEnv(names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return ""
}
