package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// RedactOptions extends the built-in masks.
//
// MaskHeaders are replaced by "[REDACTED]" in addition to Authorization,
// Cookie and Set-Cookie. MaskParams are query parameters replaced the same
// way in addition to token, access_token and password. Matching is
// case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
	MaskParams  []string
}

// Redactor scrubs obvious personal data (uuids, emails, phone numbers) from
// values headed for the logs and masks credential-bearing fields.
type Redactor struct {
	headers map[string]struct{}
	params  map[string]struct{}
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// digits only, so uuid fragments never match
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

const redacted = "[REDACTED]"

// NewRedactor builds a Redactor from opts.
func NewRedactor(opts RedactOptions) *Redactor {
	r := &Redactor{
		headers: set("authorization", "cookie", "set-cookie"),
		params:  set("token", "access_token", "password"),
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.headers[h] = struct{}{}
		}
	}
	for _, p := range opts.MaskParams {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			r.params[p] = struct{}{}
		}
	}
	return r
}

// Scrub replaces ids, emails and phone numbers in s. UUIDs go first: the
// phone pattern would otherwise eat their digit groups.
func (r *Redactor) Scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// Query masks credential parameters and scrubs the remaining values. Keys
// come out sorted; an unparsable query is scrubbed as a whole.
func (r *Redactor) Query(raw string) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return r.Scrub(raw)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		_, masked := r.params[strings.ToLower(k)]
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			if masked {
				b.WriteString(redacted)
			} else {
				b.WriteString(r.Scrub(v))
			}
		}
	}
	return b.String()
}

// Header returns the loggable value of header name.
func (r *Redactor) Header(name, value string) string {
	if _, ok := r.headers[strings.ToLower(name)]; ok {
		return redacted
	}
	return r.Scrub(value)
}

// Headers renders h as a zerolog dictionary.
func (r *Redactor) Headers(h http.Header) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		d.Str(k, r.Header(k, strings.Join(vv, ", ")))
	}
	return d
}

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}
