package router

import (
	"net"
	"strings"

	"github.com/Maruffly/webserv-sub000/pkg/config"
)

// ipAllowed implements a location's `allow`/`deny` gate: a deny rule that
// matches the client wins unless any allow rule also matches it (rule
// specificity is not compared); with no deny match, an explicit allow list
// requires a match to admit the client. A location with neither directive
// admits everyone.
func ipAllowed(loc *config.LocationConfig, remoteAddr string) bool {
	if loc == nil || (len(loc.Allow) == 0 && len(loc.Deny) == 0) {
		return true
	}
	ip := hostOf(remoteAddr)
	for _, rule := range loc.Deny {
		if matchesIPRule(rule, ip) {
			for _, allow := range loc.Allow {
				if matchesIPRule(allow, ip) {
					return true
				}
			}
			return false
		}
	}
	if len(loc.Allow) > 0 {
		for _, rule := range loc.Allow {
			if matchesIPRule(rule, ip) {
				return true
			}
		}
		return false
	}
	return true
}

func hostOf(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func matchesIPRule(rule, ip string) bool {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return false
	}
	if rule == "all" {
		return true
	}
	if strings.Contains(rule, "/") {
		_, network, err := net.ParseCIDR(rule)
		if err != nil {
			return false
		}
		parsed := net.ParseIP(ip)
		return parsed != nil && network.Contains(parsed)
	}
	return rule == ip
}
