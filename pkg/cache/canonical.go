package cache

import (
	"net/url"
	"sort"
	"strings"
)

// CanonicalizeQuery rewrites a path-plus-query so equivalent requests share
// one cache entry regardless of parameter order: filter parameters are
// sorted lexicographically by key, then by value.
//
//	CanonicalizeQuery("/tasks?b=2&a=1&a=0") == "/tasks?a=0&a=1&b=2"
//	CanonicalizeQuery("/tasks") == "/tasks"
func CanonicalizeQuery(pathAndQuery string) string {
	path, rawQuery, found := strings.Cut(pathAndQuery, "?")
	if !found || rawQuery == "" {
		return path
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable queries pass through untouched; they just cache
		// under their literal form.
		return pathAndQuery
	}

	type pair struct{ key, value string }
	pairs := make([]pair, 0, len(values))
	for key, vs := range values {
		for _, v := range vs {
			pairs = append(pairs, pair{key, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	var b strings.Builder
	b.WriteString(path)
	for i, p := range pairs {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}
