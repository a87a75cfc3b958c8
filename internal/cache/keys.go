package cache

import (
	"net/url"
	"sort"
	"strings"
)

// IdentityKey is the cache key for an identity resolved from a token subject.
func IdentityKey(subjectID string) string {
	return "identity|" + url.PathEscape(subjectID)
}

// RequestKey fingerprints a request by route template, path params and query.
// Every component is escaped so the separator cannot appear inside one, which
// keeps distinct (template, params, query) tuples on distinct keys.
func RequestKey(template string, params map[string]string, query url.Values) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, url.QueryEscape(name)+"="+url.QueryEscape(params[name]))
	}

	return "API|" + url.PathEscape(template) + "|" + strings.Join(pairs, "&") + "|" + query.Encode()
}
