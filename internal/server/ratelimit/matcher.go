package ratelimit

import "strings"

// MatchEndpoint resolves the throttling tier for a request. Exact path+method
// matches win; tiers whose path ends in "/" match as prefixes, so "/runs/"
// covers "/runs/{id}" and everything under it. The health check is never
// throttled. Returns nil when only the default tier applies.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == "GET" {
		return &EndpointConfig{}
	}

	for i := range configs {
		if configs[i].Path == path && configs[i].Method == method {
			return &configs[i]
		}
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}

	return nil
}
