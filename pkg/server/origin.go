// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// originChecker decides which origins may open websockets.
type originChecker struct {
	log      *logrus.Logger
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginChecker(origins []string, log *logrus.Logger) *originChecker {
	oc := &originChecker{
		log:     log,
		allowed: make(map[string]struct{}),
	}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			oc.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.WithField("origin", origin).Warn("Ignoring invalid allowed origin")
			continue
		}
		oc.allowed[normalized] = struct{}{}
	}

	return oc
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (oc *originChecker) check(r *http.Request) bool {
	if oc.allows(r) {
		return true
	}

	oc.log.WithFields(logrus.Fields{
		"origin":      r.Header.Get("Origin"),
		"remote_addr": r.RemoteAddr,
	}).Warn("Blocked websocket from disallowed origin")
	return false
}

func (oc *originChecker) allows(r *http.Request) bool {
	if oc.allowAll {
		return true
	}

	header := r.Header.Get("Origin")
	if header == "" {
		// Not a browser.
		return true
	}

	normalized, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	if len(oc.allowed) == 0 {
		u, _ := url.Parse(normalized)
		return strings.EqualFold(u.Host, r.Host)
	}

	_, ok = oc.allowed[normalized]
	return ok
}
