// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package server

import (
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/n0ot/relayhub/pkg/transport"
)

// handleWebSocket upgrades the request, and serves the connection until it closes.
func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an error.
		srv.Log.WithFields(logrus.Fields{
			"remote_addr": r.RemoteAddr,
			"error":       err,
		}).Info("Websocket upgrade failed")
		return
	}

	srv.sessions.Add(1)
	defer srv.sessions.Done()

	ws := transport.NewWebSocket(conn, transport.WebSocketOptions{
		WriteWait:      srv.WriteWait,
		ReadTimeout:    srv.readTimeout(),
		MaxMessageSize: srv.MaxMessageSize,
	})
	srv.serveSession(ws, remoteHost(r.RemoteAddr))
}

// serveSession runs a connection's lifecycle: register it, pump its frames into the dispatcher,
// and unregister it once the read loop ends.
func (srv *Server) serveSession(ws *transport.WebSocket, host string) {
	id, err := srv.dispatcher.OnConnected(ws)
	log := srv.Log.WithFields(logrus.Fields{
		"connection_id": id,
		"remote_host":   host,
	})
	if err != nil {
		log.WithField("error", err).Warn("Cannot greet connection")
		srv.dispatcher.OnDisconnected(id, transport.EndpointUnavailable)
		return
	}
	log.Info("Session started")

	done := make(chan struct{})
	go srv.keepAlive(ws, done)

	err = ws.ReadLoop(func(frame []byte) {
		if err := srv.dispatcher.Receive(id, frame); err != nil {
			log.WithField("error", err).Info("Cannot handle frame")
		}
	})
	close(done)

	reason := transport.NormalClosure
	if err != nil {
		log.WithField("error", err).Info("Read failed")
		reason = transport.EndpointUnavailable
	}
	srv.dispatcher.OnDisconnected(id, reason)
	log.WithField("reason", reason).Info("Session ended")
}

// keepAlive pings ws every TimeBetweenPings until done is closed or a ping fails.
func (srv *Server) keepAlive(ws *transport.WebSocket, done <-chan struct{}) {
	if srv.TimeBetweenPings <= 0 {
		return
	}

	ticker := time.NewTicker(srv.TimeBetweenPings)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ws.Ping(); err != nil {
				return
			}
		}
	}
}

// readTimeout is how long a connection may stay silent, pongs included, before it is dropped.
func (srv *Server) readTimeout() time.Duration {
	if srv.TimeBetweenPings <= 0 || srv.PingsUntilTimeout <= 0 {
		return 0
	}
	return srv.TimeBetweenPings * time.Duration(srv.PingsUntilTimeout+1)
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return getHostFromAddrIfPossible(host)
}
