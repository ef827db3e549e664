// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package methods

import "github.com/n0ot/relayhub/pkg/invoke"

// ping answers with a Pong invocation.
func ping(hub Hub) invoke.Method {
	return invoke.Func0("Ping", func(connID string) error {
		return hub.InvokeClient(connID, ClientPong)
	})
}

// echo sends message back to the caller as text.
func echo(hub Hub) invoke.Method {
	return invoke.Func1("Echo", func(connID string, message string) error {
		return hub.SendText(connID, message)
	})
}
