package fetcher

import "strings"

// hostAllowlist stores exact hosts and suffix wildcards derived from
// configuration. Only listed hosts may be fetched.
type hostAllowlist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostAllowlist(patterns []string) *hostAllowlist {
	matcher := &hostAllowlist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			if suffix := strings.TrimPrefix(value, "*."); suffix != "" {
				matcher.addSuffix(suffix)
			}
		case strings.HasPrefix(value, "."):
			if suffix := strings.TrimPrefix(value, "."); suffix != "" {
				matcher.addSuffix(suffix)
			}
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	return matcher
}

func (a *hostAllowlist) addSuffix(suffix string) {
	for _, existing := range a.suffixes {
		if existing == suffix {
			return
		}
	}
	a.suffixes = append(a.suffixes, suffix)
}

// Allowed reports whether host matches an exact entry or a wildcard
// suffix. An empty allow-list permits nothing.
func (a *hostAllowlist) Allowed(host string) bool {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := a.exact[host]; ok {
		return true
	}
	for _, suffix := range a.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
