// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/n0ot/relayhub/pkg/registry"
)

// StatsPasswordHeader carries the stats password on requests to /stats.
const StatsPasswordHeader = "X-Stats-Password"

// Stats contains summary information about a running server.
type Stats struct {
	registry.Stats
	NumGroups int      `json:"num_groups"`
	Methods   []string `json:"methods"`
}

// StatsResponse is returned by /stats when the correct password is given.
type StatsResponse struct {
	Type  string `json:"type"`
	Stats Stats  `json:"stats"`
}

// ErrorResponse is returned by /stats when stats cannot be retrieved.
type ErrorResponse struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Stats gets stats for this server.
func (srv *Server) Stats() Stats {
	srv.init()
	return Stats{
		Stats:     srv.registry.Stats(),
		NumGroups: srv.groups.Len(),
		Methods:   srv.router.Names(),
	}
}

func (srv *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := srv.Log.WithField("remote_addr", r.RemoteAddr)
	if srv.StatsPassword == "" {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Type: "error", Error: "stats are disabled"})
		return
	}

	password := r.Header.Get(StatsPasswordHeader)
	if password == "" {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Type: "error", Error: "no password"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(srv.StatsPassword)) != 1 {
		log.Warn("Wrong stats password")
		time.Sleep(srv.statsPenalty) // Prevent brute forcing
		writeJSON(w, http.StatusForbidden, ErrorResponse{Type: "error", Error: "wrong password"})
		return
	}

	stats := srv.Stats()
	log.WithFields(logrus.Fields{
		"num_connections": stats.NumConnections,
		"num_groups":      stats.NumGroups,
	}).Info("Stats requested")
	writeJSON(w, http.StatusOK, StatsResponse{Type: "stats", Stats: stats})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
