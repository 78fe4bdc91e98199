package utils

import (
	"path"
	"strings"
)

// NormalizeWebPath cleans a configured route prefix: leading slash, no
// trailing slash, "" for the root.
func NormalizeWebPath(p string) string {
	if idx := strings.IndexAny(p, "?#"); idx != -1 {
		p = p[:idx]
	}
	if p == "" {
		return ""
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return ""
	}
	return cleaned
}

// PeerEndpoint joins a peer base address with the route under web path.
func PeerEndpoint(address, webPath, route string) string {
	return strings.TrimRight(address, "/") + NormalizeWebPath(webPath) + "/" + strings.TrimLeft(route, "/")
}
