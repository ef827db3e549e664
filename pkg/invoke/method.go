// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package invoke

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Variadic is the arity of a method that accepts any number of arguments.
const Variadic = -1

// A Method is an entry in a Router's registration table.
// Methods are created with Func0 through Func3, or FuncArgs,
// which declare the method's arity and parameter types up front.
type Method struct {
	name  string
	arity int
	// bind decodes args into the handler's parameter types,
	// returning a call that runs the handler.
	bind func(args []interface{}) (func(connID string) error, error)
}

// Name returns the name clients invoke the method by.
func (m Method) Name() string {
	return m.name
}

// Arity returns the number of arguments the method takes, or Variadic.
func (m Method) Arity() int {
	return m.arity
}

// ArgumentError reports an argument that couldn't be decoded into its parameter's type.
type ArgumentError struct {
	Index int // zero based
	Err   error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %d: %s", e.Index+1, e.Err)
}

// Unwrap returns the decoding error.
func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// Func0 declares a method taking no arguments.
func Func0(name string, fn func(connID string) error) Method {
	return Method{
		name:  name,
		arity: 0,
		bind: func(args []interface{}) (func(string) error, error) {
			return fn, nil
		},
	}
}

// Func1 declares a method taking one argument of type A.
func Func1[A any](name string, fn func(connID string, a A) error) Method {
	return Method{
		name:  name,
		arity: 1,
		bind: func(args []interface{}) (func(string) error, error) {
			a, err := decodeArg[A](0, args[0])
			if err != nil {
				return nil, err
			}
			return func(connID string) error { return fn(connID, a) }, nil
		},
	}
}

// Func2 declares a method taking arguments of types A and B.
func Func2[A, B any](name string, fn func(connID string, a A, b B) error) Method {
	return Method{
		name:  name,
		arity: 2,
		bind: func(args []interface{}) (func(string) error, error) {
			a, err := decodeArg[A](0, args[0])
			if err != nil {
				return nil, err
			}
			b, err := decodeArg[B](1, args[1])
			if err != nil {
				return nil, err
			}
			return func(connID string) error { return fn(connID, a, b) }, nil
		},
	}
}

// Func3 declares a method taking arguments of types A, B and C.
func Func3[A, B, C any](name string, fn func(connID string, a A, b B, c C) error) Method {
	return Method{
		name:  name,
		arity: 3,
		bind: func(args []interface{}) (func(string) error, error) {
			a, err := decodeArg[A](0, args[0])
			if err != nil {
				return nil, err
			}
			b, err := decodeArg[B](1, args[1])
			if err != nil {
				return nil, err
			}
			c, err := decodeArg[C](2, args[2])
			if err != nil {
				return nil, err
			}
			return func(connID string) error { return fn(connID, a, b, c) }, nil
		},
	}
}

// FuncArgs declares a method receiving its arguments undecoded.
// arity may be Variadic.
func FuncArgs(name string, arity int, fn func(connID string, args []interface{}) error) Method {
	return Method{
		name:  name,
		arity: arity,
		bind: func(args []interface{}) (func(string) error, error) {
			args = append([]interface{}(nil), args...)
			return func(connID string) error { return fn(connID, args) }, nil
		},
	}
}

// decodeArg converts a decoded wire value into T.
// Numbers convert between numeric types only when the value is unchanged;
// nothing converts to or from strings. null only decodes into pointers, interfaces, maps and slices.
func decodeArg[T any](index int, raw interface{}) (T, error) {
	var v T
	if raw == nil && !nullable(reflect.TypeOf(&v).Elem().Kind()) {
		return v, &ArgumentError{Index: index, Err: errNull}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  exactNumberHook,
		ErrorUnused: true,
		TagName:     "json",
		Result:      &v,
	})
	if err != nil {
		return v, &ArgumentError{Index: index, Err: err}
	}
	if err := dec.Decode(raw); err != nil {
		return v, &ArgumentError{Index: index, Err: err}
	}
	return v, nil
}

var errNull = errors.New("null is not allowed here")

func nullable(k reflect.Kind) bool {
	switch k {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

// exactNumberHook rejects numbers that would change on the way into their parameter:
// fractions or out of range values bound for integers, and floats float32 can't hold.
// mapstructure would otherwise truncate or wrap them.
func exactNumberHook(from, to reflect.Kind, data interface{}) (interface{}, error) {
	if from != reflect.Float64 && from != reflect.Float32 {
		return data, nil
	}
	f := reflect.ValueOf(data).Float()

	if to == reflect.Float32 {
		if float64(float32(f)) != f {
			return nil, fmt.Errorf("%v does not fit in a float32", data)
		}
		return data, nil
	}

	bits, signed, ok := intSize(to)
	if !ok {
		return data, nil
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not a whole number", data)
	}

	// Bounds are powers of two, so they are exact as float64.
	if signed {
		limit := math.Ldexp(1, bits-1)
		if f < -limit || f >= limit {
			return nil, fmt.Errorf("%v is out of range for %s", data, to)
		}
		return data, nil
	}
	if f < 0 {
		return nil, fmt.Errorf("%v is negative", data)
	}
	if f >= math.Ldexp(1, bits) {
		return nil, fmt.Errorf("%v is out of range for %s", data, to)
	}
	return data, nil
}

// intSize reports the width and signedness of an integer kind.
func intSize(k reflect.Kind) (bits int, signed, ok bool) {
	switch k {
	case reflect.Int:
		return strconv.IntSize, true, true
	case reflect.Int8:
		return 8, true, true
	case reflect.Int16:
		return 16, true, true
	case reflect.Int32:
		return 32, true, true
	case reflect.Int64:
		return 64, true, true
	case reflect.Uint, reflect.Uintptr:
		return strconv.IntSize, false, true
	case reflect.Uint8:
		return 8, false, true
	case reflect.Uint16:
		return 16, false, true
	case reflect.Uint32:
		return 32, false, true
	case reflect.Uint64:
		return 64, false, true
	}
	return 0, false, false
}
