// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package methods

import "github.com/n0ot/relayhub/pkg/invoke"

// joinGroup adds the caller to a group, and tells the group's other members.
func joinGroup(hub Hub) invoke.Method {
	return invoke.Func1("JoinGroup", func(connID string, group string) error {
		if err := requireGroup(group); err != nil {
			return err
		}

		hub.AddToGroup(group, connID)
		return hub.InvokeGroup(group, connID, ClientJoined, group, connID)
	})
}

// leaveGroup removes the caller from a group, and tells the members left behind.
func leaveGroup(hub Hub) invoke.Method {
	return invoke.Func1("LeaveGroup", func(connID string, group string) error {
		if err := requireGroup(group); err != nil {
			return err
		}

		hub.RemoveFromGroup(group, connID)
		return hub.InvokeGroup(group, "", ClientLeft, group, connID)
	})
}
