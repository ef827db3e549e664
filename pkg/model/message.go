// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package model contains the messages exchanged between relayhub and its clients.
package model

// MessageType identifies how an Envelope's Data should be interpreted.
type MessageType string

const (
	// ConnectionEvent carries a connection's own ID; sent once, right after connecting.
	ConnectionEvent MessageType = "ConnectionEvent"
	// Text carries a plain text message.
	Text MessageType = "Text"
	// ClientMethodInvocation carries a serialized Invocation.
	ClientMethodInvocation MessageType = "ClientMethodInvocation"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case ConnectionEvent, Text, ClientMethodInvocation:
		return true
	}
	return false
}

// An Envelope wraps every message sent to and from clients.
type Envelope struct {
	Type MessageType `json:"messageType"`
	Data string      `json:"data"`
}

// NewConnectionEvent creates the envelope that tells a client its connection ID.
func NewConnectionEvent(connID string) Envelope {
	return Envelope{Type: ConnectionEvent, Data: connID}
}

// NewText creates a text envelope.
func NewText(text string) Envelope {
	return Envelope{Type: Text, Data: text}
}

// An Invocation names a method and the arguments to call it with.
// It travels as the Data of a ClientMethodInvocation envelope.
type Invocation struct {
	MethodName string        `json:"methodName"`
	Arguments  []interface{} `json:"arguments"`
}

// NewInvocation creates an invocation of method with args.
// A nil argument list is normalized to an empty one, so it serializes as [].
func NewInvocation(method string, args ...interface{}) Invocation {
	if args == nil {
		args = []interface{}{}
	}
	return Invocation{MethodName: method, Arguments: args}
}
