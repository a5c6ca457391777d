package service

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// HostAllowlist restricts which hosts remote sources may point at. An empty list allows all hosts.
type HostAllowlist struct {
	hosts []string
}

func NewHostAllowlist(hosts []string) *HostAllowlist {
	list := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			list = append(list, h)
		}
	}

	log.Debug().Strs("hosts", list).Msg("configured remote host allowlist")

	return &HostAllowlist{hosts: list}
}

// IsAllowed matches host exactly or against "*.example.com" style entries.
func (a *HostAllowlist) IsAllowed(host string) bool {
	if a == nil || len(a.hosts) == 0 {
		return true
	}

	host = strings.ToLower(host)
	for _, h := range a.hosts {
		if h == host {
			return true
		}
		if suffix, ok := strings.CutPrefix(h, "*"); ok && strings.HasSuffix(host, suffix) {
			return true
		}
	}

	return false
}
