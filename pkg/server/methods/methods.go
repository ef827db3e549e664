// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package methods contains the server methods clients can invoke.
package methods

import (
	"github.com/pkg/errors"

	"github.com/n0ot/relayhub/pkg/invoke"
)

// Client methods invoked by the server.
const (
	ClientPong           = "Pong"
	ClientJoined         = "Joined"
	ClientLeft           = "Left"
	ClientReceiveMessage = "ReceiveMessage"
)

// Hub is what methods use to act on connections and groups.
type Hub interface {
	AddToGroup(group, connID string)
	RemoveFromGroup(group, connID string)
	SendText(connID, text string) error
	InvokeClient(connID, method string, args ...interface{}) error
	InvokeGroup(group, exceptID, method string, args ...interface{}) error
	InvokeAll(method string, args ...interface{}) error
}

// Register adds every server method to r, bound to hub.
func Register(r *invoke.Router, hub Hub) error {
	if err := r.Register(
		ping(hub),
		echo(hub),
		joinGroup(hub),
		leaveGroup(hub),
		sendToGroup(hub),
		sendToConnection(hub),
		broadcast(hub),
	); err != nil {
		return errors.Wrap(err, "Register server methods")
	}
	return nil
}

func requireGroup(group string) error {
	if group == "" {
		return errors.New("No group name given")
	}
	return nil
}
