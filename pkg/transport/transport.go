// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package transport defines the bidirectional stream relayhub sends envelopes over.
package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// State is the lifecycle state of a transport.
type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
	// Aborted means the stream failed without a close handshake.
	Aborted
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	case Aborted:
		return "Aborted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// CloseReason is sent to the peer when a transport is closed.
// Values follow the websocket close codes.
type CloseReason int

const (
	// NormalClosure is used for explicit or administrative removal.
	NormalClosure CloseReason = 1000
	// EndpointUnavailable is used when a send failed because the peer appears to be gone.
	EndpointUnavailable CloseReason = 1001
)

func (r CloseReason) String() string {
	switch r {
	case NormalClosure:
		return "NormalClosure"
	case EndpointUnavailable:
		return "EndpointUnavailable"
	}
	return fmt.Sprintf("CloseReason(%d)", int(r))
}

// Description gives a short human readable text for the reason.
func (r CloseReason) Description() string {
	switch r {
	case NormalClosure:
		return "Connection closed"
	case EndpointUnavailable:
		return "Endpoint unavailable"
	}
	return ""
}

// A Transport is a bidirectional stream to one client.
// Implementations must allow Send, Close and State to be called from multiple goroutines.
type Transport interface {
	// Send transmits one frame.
	// Failures should be reported as a *SendError so callers can classify them.
	Send(data []byte) error
	// Close gracefully closes the stream, telling the peer why.
	Close(reason CloseReason, description string) error
	// State reports the current state. Only Open transports accept sends.
	State() State
}

// ErrorClass classifies a failed send.
type ErrorClass int

const (
	// Other is any failure that doesn't mean the peer is gone.
	Other ErrorClass = iota
	// PrematureClose means the peer dropped the connection before the frame was delivered.
	PrematureClose
)

func (c ErrorClass) String() string {
	if c == PrematureClose {
		return "PrematureClose"
	}
	return "Other"
}

// SendError is returned by Transport.Send.
type SendError struct {
	Class ErrorClass
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %s", e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *SendError) Unwrap() error {
	return e.Err
}

// IsPrematureClose reports whether err, or any error it wraps, is a SendError of class PrematureClose.
func IsPrematureClose(err error) bool {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Class == PrematureClose
	}
	return false
}
