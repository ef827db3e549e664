// Copyright © 2019 Niko Carpenter <nikoacarpenter@gmail.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package server serves the relayhub gateway over websockets.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/n0ot/relayhub/pkg/codec"
	"github.com/n0ot/relayhub/pkg/dispatch"
	"github.com/n0ot/relayhub/pkg/groups"
	"github.com/n0ot/relayhub/pkg/invoke"
	"github.com/n0ot/relayhub/pkg/registry"
	"github.com/n0ot/relayhub/pkg/transport"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 64 * 1024
	wrongPasswordPenalty  = 5 * time.Second
)

// Server Contains state for a relayhub server.
// Set the exported fields before calling any method.
type Server struct {
	// TimeBetweenPings specifies the amount of time that will elapse before clients will be sent a ping.
	// If 0, no pings will be sent.
	TimeBetweenPings time.Duration

	// PingsUntilTimeout specifies the number of pings that can go unanswered before a client is dropped.
	// If TimeBetweenPings or PingsUntilTimeout is 0, clients are never timed out.
	PingsUntilTimeout int

	// WriteWait bounds each write to a client. Defaults to 10 seconds.
	WriteWait time.Duration

	// MaxMessageSize limits the size of frames clients may send. Defaults to 64 KiB.
	MaxMessageSize int64

	// AllowedOrigins lists the origins allowed to open websockets.
	// "*" allows any origin. If empty, only same-origin requests and clients sending no Origin are allowed.
	AllowedOrigins []string

	// TLSConfig optionally provides a TLS configuration for use by ListenAndServeTLS.
	TLSConfig *tls.Config

	// StatsPassword sets the password for retrieving stats. If empty, stats are disabled.
	StatsPassword string

	Log *logrus.Logger

	initOnce      sync.Once
	registry      *registry.Registry
	groups        *groups.Index
	router        *invoke.Router
	dispatcher    *dispatch.Dispatcher
	upgrader      websocket.Upgrader
	statsPenalty  time.Duration
	httpSrvLock   sync.Mutex // Protects httpSrv
	httpSrv       *http.Server
	sessions      sync.WaitGroup
	originChecker *originChecker
}

func (srv *Server) init() {
	srv.initOnce.Do(func() {
		if srv.Log == nil {
			srv.Log = logrus.New()
		}
		if srv.WriteWait <= 0 {
			srv.WriteWait = defaultWriteWait
		}
		if srv.MaxMessageSize <= 0 {
			srv.MaxMessageSize = defaultMaxMessageSize
		}
		if srv.statsPenalty == 0 {
			srv.statsPenalty = wrongPasswordPenalty
		}

		c := codec.JSON{}
		srv.registry = registry.New(srv.Log)
		srv.groups = groups.New()
		srv.router = invoke.NewRouter(c, srv.Log)
		srv.dispatcher = dispatch.New(srv.registry, srv.groups, srv.router, c, srv.Log)
		srv.originChecker = newOriginChecker(srv.AllowedOrigins, srv.Log)
		srv.upgrader = websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     srv.originChecker.check,
		}
	})
}

// Router returns the table of methods clients can invoke.
// Register methods on it before serving.
func (srv *Server) Router() *invoke.Router {
	srv.init()
	return srv.router
}

// Dispatcher returns the dispatcher used to send to clients.
func (srv *Server) Dispatcher() *dispatch.Dispatcher {
	srv.init()
	return srv.dispatcher
}

// Handler returns the HTTP handler serving websockets on /ws, stats on /stats,
// and a health check on /.
func (srv *Server) Handler() http.Handler {
	srv.init()
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleHealth)
	mux.HandleFunc("/ws", srv.handleWebSocket)
	mux.HandleFunc("/stats", srv.handleStats)
	return mux
}

// ListenAndServe listens for connections on the network, and serves them the relayhub gateway.
func (srv *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "Listen")
	}

	srv.init()
	srv.Log.WithFields(logrus.Fields{
		"addr":        addr,
		"tls_enabled": false,
	}).Info("Listening for incoming connections")
	return srv.Serve(listener)
}

// ListenAndServeTLS behaves just like ListenAndServe, but wraps the connection with TLS.
func (srv *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return errors.Wrap(err, "Load X.509 key pair")
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	if srv.TLSConfig == nil {
		return errors.New("No TLSConfig set in server, and no certFile/keyFile given")
	}

	listener, err := tls.Listen("tcp", addr, srv.TLSConfig)
	if err != nil {
		return errors.Wrap(err, "Listen TLS")
	}

	srv.init()
	srv.Log.WithFields(logrus.Fields{
		"addr":        addr,
		"tls_enabled": true,
	}).Info("Listening for incoming connections")
	return srv.Serve(listener)
}

// Serve serves the gateway on listener until Shutdown is called.
// Like http.Server, it returns http.ErrServerClosed after a shutdown.
func (srv *Server) Serve(listener net.Listener) error {
	srv.init()
	srv.Log.WithFields(logrus.Fields{
		"time_between_pings":  srv.TimeBetweenPings,
		"pings_until_timeout": srv.PingsUntilTimeout,
		"methods":             srv.router.Names(),
	}).Info("Server started")

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.httpSrvLock.Lock()
	srv.httpSrv = httpSrv
	srv.httpSrvLock.Unlock()

	return httpSrv.Serve(listener)
}

// Shutdown stops accepting connections, disconnects every client,
// and waits for their sessions to end or ctx to expire.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.init()
	srv.httpSrvLock.Lock()
	httpSrv := srv.httpSrv
	srv.httpSrvLock.Unlock()

	var err error
	if httpSrv != nil {
		// Hijacked websocket connections aren't tracked by http.Server,
		// so they are closed through the registry below.
		err = httpSrv.Shutdown(ctx)
	}

	n := srv.registry.RemoveAll(transport.NormalClosure)
	srv.Log.WithFields(logrus.Fields{
		"connections": n,
	}).Info("Closed client connections")

	done := make(chan struct{})
	go func() {
		srv.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = errors.Wrap(ctx.Err(), "Wait for sessions")
		}
	}
	return err
}

func (srv *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "relayhub is running")
}

// getHostFromAddrIfPossible tries to get the reverse dns host for an address.
// If that isn't possible, it just returns the address.
func getHostFromAddrIfPossible(addr string) string {
	var hosts string
	names, err := net.LookupAddr(addr)
	if err == nil { // No need to report errors; just fallback to IP
		hosts = strings.Join(names, ", ")
	}

	if hosts == "" {
		return addr
	}

	return fmt.Sprintf("%s (%s)", hosts, addr)
}
