package chtransport

import (
	"net/url"
	"sort"
	"strings"
)

// Settings is a merged set of server-side query settings and roles, each
// rendered as its own query-string parameter with list values joined by
// commas, per spec.md §4.5/§6.
type Settings struct {
	Values map[string]string
	Roles  []string
}

// Merge combines client-wide defaults with per-call overrides. Per-call
// values win on key conflict, per spec.md §4.5 step 2 ("per-call wins").
func Merge(defaults, perCall Settings) Settings {
	out := Settings{Values: make(map[string]string, len(defaults.Values)+len(perCall.Values))}
	for k, v := range defaults.Values {
		out.Values[k] = v
	}
	for k, v := range perCall.Values {
		out.Values[k] = v
	}
	if len(perCall.Roles) > 0 {
		out.Roles = perCall.Roles
	} else {
		out.Roles = defaults.Roles
	}
	return out
}

// ApplyQuery writes settings and roles onto q as query-string parameters,
// with keys in sorted order for deterministic request lines.
func (s Settings) ApplyQuery(q url.Values) {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, s.Values[k])
	}
	if len(s.Roles) > 0 {
		q.Set("roles", strings.Join(s.Roles, ","))
	}
}
