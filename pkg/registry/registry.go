// Copyright © 2023 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package registry tracks the live connections on a relayhub server.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/sirupsen/logrus"

	"github.com/n0ot/relayhub/pkg/transport"
)

// A Connection is a registered transport and the ID clients use to address it.
type Connection struct {
	ID          string
	Transport   transport.Transport
	ConnectedAt time.Time
	seq         uint64 // registration order, used to keep snapshots stable
}

// entry is a registered connection.
// It stays hidden from lookups and snapshots until it is published.
type entry struct {
	conn      Connection
	published atomic.Bool
}

// Registry maps connection IDs to transports.
// All methods are safe for concurrent use.
type Registry struct {
	log     *logrus.Logger
	conns   cmap.ConcurrentMap[string, *entry]
	nextSeq atomic.Uint64

	statsLock          sync.Mutex // Protects the fields below
	createdTime        time.Time
	maxConnections     int
	maxConnectionsTime time.Time
}

// New creates an empty registry.
func New(log *logrus.Logger) *Registry {
	now := time.Now()
	return &Registry{
		log:                log,
		conns:              cmap.New[*entry](),
		createdTime:        now,
		maxConnectionsTime: now,
	}
}

// Add registers t under a freshly generated ID and returns the ID.
// If greet is not nil, it is called with the ID before the connection becomes visible
// to Get, Exists, GetID and Snapshot, so whatever greet sends reaches the peer
// ahead of anything sent through the registry.
// If greet fails, the connection stays hidden, and its error is returned;
// the caller should Remove it.
func (reg *Registry) Add(t transport.Transport, greet func(id string) error) (string, error) {
	var e *entry
	for {
		e = &entry{conn: Connection{
			ID:          uuid.NewString(),
			Transport:   t,
			ConnectedAt: time.Now(),
			seq:         reg.nextSeq.Add(1),
		}}
		if reg.conns.SetIfAbsent(e.conn.ID, e) {
			break
		}
	}

	id := e.conn.ID
	if greet != nil {
		if err := greet(id); err != nil {
			return id, err
		}
	}
	e.published.Store(true)

	count := reg.conns.Count()
	reg.statsLock.Lock()
	if count > reg.maxConnections {
		reg.maxConnections = count
		reg.maxConnectionsTime = time.Now()
	}
	reg.statsLock.Unlock()

	reg.log.WithFields(logrus.Fields{
		"connection_id": id,
		"connections":   count,
	}).Debug("Connection registered")
	return id, nil
}

// Remove unregisters the connection and closes its transport with reason.
// The connection is gone as soon as it is unregistered,
// so failing to close an already broken transport is only logged.
// Connections still being greeted can be removed.
// Removing an unknown ID does nothing.
// Remove reports whether the connection was registered.
func (reg *Registry) Remove(id string, reason transport.CloseReason) bool {
	e, ok := reg.conns.Pop(id)
	if !ok {
		return false
	}
	conn := e.conn

	fields := logrus.Fields{
		"connection_id": id,
		"reason":        reason,
	}
	if err := conn.Transport.Close(reason, reason.Description()); err != nil {
		fields["error"] = err
		reg.log.WithFields(fields).Debug("Error closing transport of removed connection")
	}
	reg.log.WithFields(fields).Debug("Connection unregistered")
	return true
}

// RemoveAll removes every connection, including those still being greeted,
// and returns how many were removed.
func (reg *Registry) RemoveAll(reason transport.CloseReason) int {
	n := 0
	for _, id := range reg.conns.Keys() {
		if reg.Remove(id, reason) {
			n++
		}
	}
	return n
}

// Get looks up a connection by ID.
func (reg *Registry) Get(id string) (Connection, bool) {
	e, ok := reg.conns.Get(id)
	if !ok || !e.published.Load() {
		return Connection{}, false
	}
	return e.conn, true
}

// Exists reports whether id is a registered connection.
func (reg *Registry) Exists(id string) bool {
	_, ok := reg.Get(id)
	return ok
}

// GetID finds the ID a transport was registered under.
func (reg *Registry) GetID(t transport.Transport) (string, bool) {
	var id string
	reg.conns.IterCb(func(key string, e *entry) {
		if id == "" && e.published.Load() && e.conn.Transport == t {
			id = key
		}
	})
	return id, id != ""
}

// Snapshot returns a copy of every registered connection, in registration order.
// Callers may iterate it while connections come and go.
func (reg *Registry) Snapshot() []Connection {
	items := reg.conns.Items()
	conns := make([]Connection, 0, len(items))
	for _, e := range items {
		if e.published.Load() {
			conns = append(conns, e.conn)
		}
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].seq < conns[j].seq })
	return conns
}

// Len returns the number of registered connections, including those still being greeted.
func (reg *Registry) Len() int {
	return reg.conns.Count()
}

// Stats contains summary information about a registry.
type Stats struct {
	Uptime             time.Duration `json:"uptime"`
	NumConnections     int           `json:"num_connections"`
	MaxConnections     int           `json:"max_connections"`
	MaxConnectionsTime time.Time     `json:"max_connections_at"`
}

// Stats gets stats for this registry.
func (reg *Registry) Stats() Stats {
	reg.statsLock.Lock()
	defer reg.statsLock.Unlock()

	return Stats{
		Uptime:             time.Since(reg.createdTime),
		NumConnections:     reg.conns.Count(),
		MaxConnections:     reg.maxConnections,
		MaxConnectionsTime: reg.maxConnectionsTime,
	}
}
