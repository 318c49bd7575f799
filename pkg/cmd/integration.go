package cmd

import "strings"

// ParseEndpoints parses "service=baseURL" pairs separated by commas into the
// endpoint map the HTTP integration gateway uses.
func ParseEndpoints(raw string) map[string]string {
	endpoints := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		service, baseURL, found := strings.Cut(pair, "=")
		if !found || service == "" || baseURL == "" {
			continue
		}

		endpoints[strings.TrimSpace(service)] = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}

	return endpoints
}
