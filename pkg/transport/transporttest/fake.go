// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"sync"

	"github.com/n0ot/relayhub/pkg/transport"
)

// Fake records every frame sent to it.
type Fake struct {
	mu          sync.Mutex
	state       transport.State
	sent        [][]byte
	sendErr     error
	closeErr    error
	closeCalls  int
	closeReason transport.CloseReason
}

// NewFake returns an Open fake transport.
func NewFake() *Fake {
	return &Fake{state: transport.Open}
}

// Send records data, or returns the error set with FailSends.
func (f *Fake) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

// Close marks the fake Closed and records the reason.
func (f *Fake) Close(reason transport.CloseReason, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.closeReason = reason
	f.state = transport.Closed
	return f.closeErr
}

// State implements transport.Transport.
func (f *Fake) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SetState forces the fake into s.
func (f *Fake) SetState(s transport.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// FailSends makes every following Send return err. Pass nil to succeed again.
func (f *Fake) FailSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// FailClose makes Close return err.
func (f *Fake) FailClose(err error) {
	f.mu.Lock()
	f.closeErr = err
	f.mu.Unlock()
}

// Sent returns a copy of the frames sent so far.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	sent := make([][]byte, len(f.sent))
	copy(sent, f.sent)
	return sent
}

// Closed reports how many times Close was called and the last reason given.
func (f *Fake) Closed() (calls int, reason transport.CloseReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls, f.closeReason
}
