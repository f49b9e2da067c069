package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/gomind-http/httpcore/request"
)

// defaultHeaderDenyList excludes auth-churn-prone headers from the
// fingerprint by default (spec §6: "a caller-configurable deny-list (e.g.,
// Authorization, Date) that MUST be excluded from the fingerprint by
// default").
var defaultHeaderDenyList = map[string]bool{
	"authorization": true,
	"date":          true,
	"cookie":        true,
	"set-cookie":    true,
}

// Fingerprint derives the content-addressed dedup/cache key for r (spec
// §4.D, §6): method uppercased, path exactly as given, query params sorted
// by key, headers lowercased/sorted with the deny-list excluded. An
// explicit request.CachePolicy.KeyOverride bypasses this entirely.
func Fingerprint(r request.Request, denyList map[string]bool) string {
	if r.CachePolicy.KeyOverride != "" {
		return r.CachePolicy.KeyOverride
	}
	if denyList == nil {
		denyList = defaultHeaderDenyList
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(string(r.Method)))
	b.WriteString("|")
	b.WriteString(r.Path)
	b.WriteString("|")
	b.WriteString(canonicalJSON(sortedParams(r.QueryParams)))
	b.WriteString("|")
	b.WriteString(canonicalJSON(sortedHeaders(r.Headers, denyList)))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func sortedParams(params map[string]string) []kv {
	return sortedKV(params, nil)
}

func sortedHeaders(headers map[string]string, denyList map[string]bool) []kv {
	lowered := make(map[string]string, len(headers))
	for k, v := range headers {
		lowered[strings.ToLower(k)] = v
	}
	return sortedKV(lowered, denyList)
}

type kv struct {
	K string `json:"k"`
	V string `json:"v"`
}

func sortedKV(m map[string]string, exclude map[string]bool) []kv {
	out := make([]kv, 0, len(m))
	for k, v := range m {
		if exclude != nil && exclude[k] {
			continue
		}
		out = append(out, kv{K: k, V: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].K < out[j].K })
	return out
}

func canonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
