// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package codec serializes envelopes and invocations for the wire.
package codec

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/n0ot/relayhub/pkg/model"
)

// A Codec converts envelopes and invocations to and from bytes.
type Codec interface {
	EncodeEnvelope(model.Envelope) ([]byte, error)
	DecodeEnvelope([]byte) (model.Envelope, error)
	EncodeInvocation(model.Invocation) ([]byte, error)
	DecodeInvocation([]byte) (model.Invocation, error)
}

// JSON is a Codec producing JSON text.
type JSON struct{}

// EncodeEnvelope implements Codec.
func (JSON) EncodeEnvelope(env model.Envelope) ([]byte, error) {
	if !env.Type.Valid() {
		return nil, errors.Errorf("Unknown message type %q", env.Type)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "Encode envelope")
	}
	return data, nil
}

// DecodeEnvelope implements Codec.
// Frames without a known messageType are rejected.
func (JSON) DecodeEnvelope(data []byte) (model.Envelope, error) {
	var env model.Envelope
	if err := strictUnmarshal(data, &env); err != nil {
		return model.Envelope{}, errors.Wrap(err, "Decode envelope")
	}
	if !env.Type.Valid() {
		return model.Envelope{}, errors.Errorf("Decode envelope: unknown message type %q", env.Type)
	}
	return env, nil
}

// EncodeInvocation implements Codec.
func (JSON) EncodeInvocation(inv model.Invocation) ([]byte, error) {
	if inv.Arguments == nil {
		inv.Arguments = []interface{}{}
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return nil, errors.Wrap(err, "Encode invocation")
	}
	return data, nil
}

// DecodeInvocation implements Codec.
// Numbers in arguments decode as float64, objects as map[string]interface{}.
func (JSON) DecodeInvocation(data []byte) (model.Invocation, error) {
	var inv model.Invocation
	if err := strictUnmarshal(data, &inv); err != nil {
		return model.Invocation{}, errors.Wrap(err, "Decode invocation")
	}
	if inv.Arguments == nil {
		inv.Arguments = []interface{}{}
	}
	return inv, nil
}

// strictUnmarshal decodes exactly one JSON value, rejecting trailing data.
func strictUnmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}
