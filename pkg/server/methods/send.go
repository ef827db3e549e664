// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package methods

import (
	"github.com/pkg/errors"

	"github.com/n0ot/relayhub/pkg/invoke"
)

// sendToGroup relays message to every member of group but the caller.
func sendToGroup(hub Hub) invoke.Method {
	return invoke.Func2("SendToGroup", func(connID string, group, message string) error {
		if err := requireGroup(group); err != nil {
			return err
		}
		return hub.InvokeGroup(group, connID, ClientReceiveMessage, connID, message)
	})
}

// sendToConnection relays message to a single connection.
func sendToConnection(hub Hub) invoke.Method {
	return invoke.Func2("SendToConnection", func(connID string, target, message string) error {
		if target == "" {
			return errors.New("No connection ID given")
		}
		return hub.InvokeClient(target, ClientReceiveMessage, connID, message)
	})
}

// broadcast relays message to every open connection, the caller included.
func broadcast(hub Hub) invoke.Method {
	return invoke.Func1("Broadcast", func(connID string, message string) error {
		return hub.InvokeAll(ClientReceiveMessage, connID, message)
	})
}
