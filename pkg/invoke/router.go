// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package invoke routes client method invocations to the handlers registered for them.
package invoke

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/n0ot/relayhub/pkg/codec"
)

var (
	// ErrMalformedInvocation is returned when an invocation can't be decoded.
	ErrMalformedInvocation = errors.New("malformed invocation")
	// ErrMethodNotFound is returned when no method is registered under the invoked name.
	ErrMethodNotFound = errors.New("method not found")
	// ErrWrongArity is returned when the number of arguments doesn't match the method.
	ErrWrongArity = errors.New("wrong number of arguments")
	// ErrWrongArguments is returned when arguments can't be converted to the method's parameter types.
	ErrWrongArguments = errors.New("wrong argument types")
	// ErrHandlerFailed is returned when a method's handler returns an error or panics.
	ErrHandlerFailed = errors.New("handler failed")
)

// A Replier sends text back to the connection that made an invocation.
type Replier interface {
	SendText(connID, text string) error
}

// Router holds the registration table of methods clients may invoke.
type Router struct {
	codec codec.Codec
	log   *logrus.Logger

	lock    sync.RWMutex // Protects methods
	methods map[string]Method
}

// NewRouter creates a router with an empty registration table.
func NewRouter(c codec.Codec, log *logrus.Logger) *Router {
	return &Router{
		codec:   c,
		log:     log,
		methods: make(map[string]Method),
	}
}

// Register adds methods to the registration table.
// Names must be unique; if any name is taken, nothing is registered.
func (r *Router) Register(methods ...Method) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	seen := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		if m.name == "" || m.bind == nil {
			return errors.New("Method has no name or handler")
		}
		if _, exists := r.methods[m.name]; exists {
			return errors.Errorf("Method %q already registered", m.name)
		}
		if _, dup := seen[m.name]; dup {
			return errors.Errorf("Method %q registered twice", m.name)
		}
		seen[m.name] = struct{}{}
	}

	for _, m := range methods {
		r.methods[m.name] = m
	}
	return nil
}

// Lookup finds a registered method by name.
func (r *Router) Lookup(name string) (Method, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// Names returns the names of all registered methods, sorted.
func (r *Router) Names() []string {
	r.lock.RLock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	r.lock.RUnlock()
	sort.Strings(names)
	return names
}

// Dispatch decodes a serialized invocation from connID and calls the method it names.
// Invocations that can't be routed are answered with a text message to connID only,
// and the matching error (ErrMethodNotFound, ErrWrongArity, ...) is returned.
// The handler runs on the calling goroutine.
func (r *Router) Dispatch(connID string, data []byte, reply Replier) error {
	inv, err := r.codec.DecodeInvocation(data)
	if err != nil {
		r.reply(reply, connID, "Malformed invocation")
		return errors.Wrap(ErrMalformedInvocation, err.Error())
	}

	m, ok := r.Lookup(inv.MethodName)
	if !ok {
		r.reply(reply, connID, fmt.Sprintf("Method %q could not be found", inv.MethodName))
		return errors.Wrapf(ErrMethodNotFound, "%q", inv.MethodName)
	}

	if m.arity != Variadic && len(inv.Arguments) != m.arity {
		r.reply(reply, connID, fmt.Sprintf("Wrong number of arguments for method %q: expected %d, got %d", m.name, m.arity, len(inv.Arguments)))
		return errors.Wrapf(ErrWrongArity, "%q: expected %d, got %d", m.name, m.arity, len(inv.Arguments))
	}

	call, err := m.bind(inv.Arguments)
	if err != nil {
		r.reply(reply, connID, fmt.Sprintf("Wrong argument types for method %q: %s", m.name, err))
		return errors.Wrapf(ErrWrongArguments, "%q: %s", m.name, err)
	}

	r.log.WithFields(logrus.Fields{
		"connection_id": connID,
		"method":        m.name,
	}).Debug("Invoking method")
	if err := r.call(call, connID); err != nil {
		r.reply(reply, connID, fmt.Sprintf("Error invoking method %q: %s", m.name, err))
		return errors.Wrapf(ErrHandlerFailed, "%q: %s", m.name, err)
	}
	return nil
}

// call runs a bound handler, turning a panic into an error.
func (r *Router) call(call func(string) error, connID string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %v", p)
		}
	}()
	return call(connID)
}

func (r *Router) reply(reply Replier, connID, text string) {
	if reply == nil {
		return
	}
	if err := reply.SendText(connID, text); err != nil {
		r.log.WithFields(logrus.Fields{
			"connection_id": connID,
			"error":         err,
		}).Warn("Cannot reply to invocation")
	}
}
