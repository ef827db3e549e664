// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package dispatch sends envelopes to connections and groups,
// and routes the envelopes connections send in.
package dispatch

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/n0ot/relayhub/pkg/codec"
	"github.com/n0ot/relayhub/pkg/groups"
	"github.com/n0ot/relayhub/pkg/invoke"
	"github.com/n0ot/relayhub/pkg/model"
	"github.com/n0ot/relayhub/pkg/registry"
	"github.com/n0ot/relayhub/pkg/transport"
)

// TextHandlerFunc receives Text envelopes sent by clients.
type TextHandlerFunc func(connID, text string)

// Dispatcher is the send and broadcast layer over a registry and group index.
// It stores nothing itself.
type Dispatcher struct {
	registry *registry.Registry
	groups   *groups.Index
	router   *invoke.Router
	codec    codec.Codec
	log      *logrus.Logger

	// OnText, if set, is called for every Text envelope a client sends.
	// Set it before connections are served.
	OnText TextHandlerFunc
}

// New creates a dispatcher. Invocations received from clients are routed through router.
func New(reg *registry.Registry, idx *groups.Index, router *invoke.Router, c codec.Codec, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		groups:   idx,
		router:   router,
		codec:    c,
		log:      log,
	}
}

// OnConnected registers t and tells the client its new connection ID.
// The connection event is the first thing sent on t; the connection isn't reachable
// by Send or broadcasts until it has gone out.
// The ID is returned even if sending it failed.
func (d *Dispatcher) OnConnected(t transport.Transport) (string, error) {
	id, err := d.registry.Add(t, func(id string) error {
		data, err := d.codec.EncodeEnvelope(model.NewConnectionEvent(id))
		if err != nil {
			return err
		}
		return d.send(id, t, data)
	})
	if err != nil {
		return id, errors.Wrap(err, "Send connection event")
	}

	d.log.WithFields(logrus.Fields{
		"connection_id": id,
	}).Info("Connected")
	return id, nil
}

// OnDisconnected unregisters a connection, closing its transport with reason.
// Calling it for a connection that is already gone does nothing.
func (d *Dispatcher) OnDisconnected(connID string, reason transport.CloseReason) {
	if !d.registry.Remove(connID, reason) {
		return
	}
	d.log.WithFields(logrus.Fields{
		"connection_id": connID,
		"reason":        reason,
	}).Info("Disconnected")
}

// Send sends env to a connection.
// Unknown connections and transports that aren't open are skipped without error.
// If the peer turns out to be gone, the connection is disconnected and nil is returned;
// any other transport error is returned.
func (d *Dispatcher) Send(connID string, env model.Envelope) error {
	conn, ok := d.registry.Get(connID)
	if !ok {
		return nil
	}
	data, err := d.codec.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return d.send(conn.ID, conn.Transport, data)
}

// SendTransport sends env over t, which should be a registered transport.
// It behaves like Send.
func (d *Dispatcher) SendTransport(t transport.Transport, env model.Envelope) error {
	id, ok := d.registry.GetID(t)
	if !ok {
		return nil
	}
	data, err := d.codec.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return d.send(id, t, data)
}

func (d *Dispatcher) send(connID string, t transport.Transport, data []byte) error {
	if t.State() != transport.Open {
		return nil
	}

	err := t.Send(data)
	if err == nil {
		return nil
	}
	if transport.IsPrematureClose(err) {
		d.log.WithFields(logrus.Fields{
			"connection_id": connID,
			"error":         err,
		}).Debug("Peer went away during send")
		d.OnDisconnected(connID, transport.EndpointUnavailable)
		return nil
	}
	return errors.Wrapf(err, "Send to %s", connID)
}

// SendText sends a Text envelope to a connection.
func (d *Dispatcher) SendText(connID, text string) error {
	return d.Send(connID, model.NewText(text))
}

// BroadcastAll sends env to every open connection, in registration order.
// A failure on one connection doesn't stop delivery to the rest;
// all failures are returned together.
func (d *Dispatcher) BroadcastAll(env model.Envelope) error {
	data, err := d.codec.EncodeEnvelope(env)
	if err != nil {
		return err
	}

	var errs error
	for _, conn := range d.registry.Snapshot() {
		errs = multierr.Append(errs, d.send(conn.ID, conn.Transport, data))
	}
	return errs
}

// BroadcastGroup sends env to every member of the named group except exceptID.
// Pass "" for exceptID to exclude nobody.
// Members whose connection no longer exists are removed from the group.
// Broadcasting to an unknown group does nothing.
func (d *Dispatcher) BroadcastGroup(group string, env model.Envelope, exceptID string) error {
	members, ok := d.groups.Members(group)
	if !ok {
		return nil
	}
	data, err := d.codec.EncodeEnvelope(env)
	if err != nil {
		return err
	}

	var errs error
	for _, id := range members {
		conn, ok := d.registry.Get(id)
		if !ok {
			if d.groups.RemoveMember(group, id) > 0 {
				d.log.WithFields(logrus.Fields{
					"connection_id": id,
					"group":         group,
				}).Debug("Pruned stale group member")
			}
			continue
		}
		if exceptID != "" && id == exceptID {
			continue
		}
		errs = multierr.Append(errs, d.send(id, conn.Transport, data))
	}
	return errs
}

// AddToGroup adds a connection to a group.
func (d *Dispatcher) AddToGroup(group, connID string) {
	d.groups.AddMember(group, connID)
}

// RemoveFromGroup removes a connection from a group.
func (d *Dispatcher) RemoveFromGroup(group, connID string) {
	d.groups.RemoveMember(group, connID)
}

// InvocationEnvelope builds a ClientMethodInvocation envelope calling method with args on the client.
func (d *Dispatcher) InvocationEnvelope(method string, args ...interface{}) (model.Envelope, error) {
	data, err := d.codec.EncodeInvocation(model.NewInvocation(method, args...))
	if err != nil {
		return model.Envelope{}, err
	}
	return model.Envelope{Type: model.ClientMethodInvocation, Data: string(data)}, nil
}

// InvokeClient calls method on one connection.
func (d *Dispatcher) InvokeClient(connID, method string, args ...interface{}) error {
	env, err := d.InvocationEnvelope(method, args...)
	if err != nil {
		return err
	}
	return d.Send(connID, env)
}

// InvokeGroup calls method on every member of a group except exceptID.
func (d *Dispatcher) InvokeGroup(group, exceptID, method string, args ...interface{}) error {
	env, err := d.InvocationEnvelope(method, args...)
	if err != nil {
		return err
	}
	return d.BroadcastGroup(group, env, exceptID)
}

// InvokeAll calls method on every connection.
func (d *Dispatcher) InvokeAll(method string, args ...interface{}) error {
	env, err := d.InvocationEnvelope(method, args...)
	if err != nil {
		return err
	}
	return d.BroadcastAll(env)
}

// Receive handles one frame sent by a connection.
// Method invocations are routed to their handlers, which run before Receive returns.
func (d *Dispatcher) Receive(connID string, frame []byte) error {
	env, err := d.codec.DecodeEnvelope(frame)
	if err != nil {
		return err
	}

	switch env.Type {
	case model.ClientMethodInvocation:
		return d.router.Dispatch(connID, []byte(env.Data), d)

	case model.Text:
		if d.OnText != nil {
			d.OnText(connID, env.Data)
			return nil
		}
		d.log.WithFields(logrus.Fields{
			"connection_id": connID,
			"text":          env.Data,
		}).Info("Received text")

	case model.ConnectionEvent:
		// Only the server announces connections.
		d.log.WithFields(logrus.Fields{
			"connection_id": connID,
		}).Debug("Ignoring connection event sent by client")
	}
	return nil
}
