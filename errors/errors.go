// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errors defines the error handling used throughout Apteryx,
// mirroring the taxonomy in the system design: invalid paths never reach
// the wire, transport and timeout failures are reported to the caller,
// and not-found is absence rather than an error.
package errors

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"fmt"
	"runtime"
	"strings"

	"apteryx.io/log"
)

// Error is the type that implements the error interface.
// It contains a number of fields, each of different type.
// An Error value may leave some values unset.
type Error struct {
	// Path is the path of the node being accessed, if relevant.
	Path string
	// Op is the operation being performed, usually the name of the
	// method being invoked (Set, Get, Watch, etc.).
	Op string
	// Kind is the class of error, such as a transport failure, or Other
	// if its class is unknown or irrelevant.
	Kind Kind
	// Err is the underlying error that triggered this one, if any.
	Err error
}

var (
	_       error                      = (*Error)(nil)
	_       encoding.BinaryUnmarshaler = (*Error)(nil)
	_       encoding.BinaryMarshaler   = (*Error)(nil)
	zeroErr Error
)

// Separator is the string used to separate nested errors. By default, to
// make errors easier on the eye, nested errors are indented on a new
// line.
var Separator = ":\n\t"

// Kind defines the kind of error this is.
type Kind uint8

// Kinds of errors, matching the taxonomy in the error handling design.
const (
	Other          Kind = iota // Unclassified error.
	Invalid                    // InvalidPath: caller-side validation failure.
	IO                         // TransportFailure: connect/send/receive error.
	Timeout                    // NoResponse: request sent, response timed out.
	NotExist                   // NotFound: returned as absence, not as error.
	NotInitialised             // Caller invoked the library before init.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Invalid:
		return "invalid path"
	case IO:
		return "transport failure"
	case Timeout:
		return "no response"
	case NotExist:
		return "not found"
	case NotInitialised:
		return "not initialised"
	}
	return "unknown error kind"
}

// E builds an error value from its arguments.
// The type of each argument determines its meaning.
// If more than one argument of a given type is presented,
// only the last one is recorded.
//
// The types are:
//	string
//		Either the path of the item being accessed, if it looks like
//		a path (starts with '/'), or the operation being performed
//		otherwise.
//	errors.Kind
//		The class of error, such as a transport failure.
//	error
//		The underlying error that triggered this one.
//
// If Kind is not specified or Other, we set it to the Kind of the
// underlying error.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			if strings.HasPrefix(arg, "/") {
				e.Path = arg
			} else {
				e.Op = arg
			}
		case Kind:
			e.Kind = arg
		case *Error:
			// Make a copy.
			e.Err = &Error{
				Path: arg.Path,
				Op:   arg.Op,
				Kind: arg.Kind,
				Err:  arg.Err,
			}
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call from %s:%d: %v", file, line, args)
			return Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}
	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	// The previous error was also one of ours. Suppress duplication so
	// the message won't contain the same kind or path twice.
	if prev.Path == e.Path {
		prev.Path = ""
	}
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}
	return e
}

// pad appends str to the buffer if the buffer already has some data.
func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Path != "" {
		b.WriteString(e.Path)
	}
	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(e.Op)
	}
	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if prevErr, ok := e.Err.(*Error); ok {
			if *prevErr != zeroErr {
				pad(b, Separator)
				b.WriteString(e.Err.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// Is reports whether err is an *Error of the given Kind, unwrapping
// nested *Error values as needed.
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return false
}

// Match reports whether the two errors are semantically equivalent,
// comparing only the fields set in the template (want) error.
func Match(want, err error) bool {
	we, ok := want.(*Error)
	if !ok {
		return want == err
	}
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if we.Path != "" && we.Path != e.Path {
		return false
	}
	if we.Op != "" && we.Op != e.Op {
		return false
	}
	if we.Kind != Other && we.Kind != e.Kind {
		return false
	}
	if we.Err != nil {
		return Match(we.Err, e.Err)
	}
	return true
}

// Str returns an error that formats as the given text. It is intended to
// be used as the error-typed argument to the E function.
func Str(text string) error {
	return &errorString{text}
}

// errorString is a trivial implementation of error.
type errorString struct {
	s string
}

func (e *errorString) Error() string {
	return e.s
}

// Errorf is equivalent to fmt.Errorf, but allows clients to import only
// this package for all error handling.
func Errorf(format string, args ...interface{}) error {
	return &errorString{fmt.Sprintf(format, args...)}
}

// MarshalAppend marshals err into a byte slice. The result is appended to
// b, which may be nil.
// It returns the argument slice unchanged if the error is nil.
func (e *Error) MarshalAppend(b []byte) []byte {
	if e == nil {
		return b
	}
	b = appendString(b, e.Path)
	b = appendString(b, e.Op)
	var tmp [16]byte // For use by PutVarint.
	N := binary.PutVarint(tmp[:], int64(e.Kind))
	b = append(b, tmp[:N]...)
	b = MarshalErrorAppend(e.Err, b)
	return b
}

// MarshalBinary marshals its receiver into a byte slice, which it
// returns. It returns nil if the error is nil. The returned error is
// always nil.
func (e *Error) MarshalBinary() ([]byte, error) {
	return e.MarshalAppend(nil), nil
}

// MarshalErrorAppend marshals an arbitrary error into a byte slice. The
// result is appended to b, which may be nil.
// It returns the argument slice unchanged if the error is nil.
// If the error is not an *Error, it just records the result of
// err.Error(). Otherwise it encodes the full Error struct.
func MarshalErrorAppend(err error, b []byte) []byte {
	if err == nil {
		return b
	}
	if e, ok := err.(*Error); ok {
		b = append(b, 'E')
		return e.MarshalAppend(b)
	}
	b = append(b, 'e')
	b = appendString(b, err.Error())
	return b
}

// MarshalError marshals an arbitrary error and returns the byte slice.
// If the error is nil, it returns nil.
func MarshalError(err error) []byte {
	return MarshalErrorAppend(err, nil)
}

// UnmarshalBinary unmarshals the byte slice into the receiver, which must
// be non-nil. The returned error is always nil.
func (e *Error) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	data, b := getBytes(b)
	if data != nil {
		e.Path = string(data)
	}
	data, b = getBytes(b)
	if data != nil {
		e.Op = string(data)
	}
	k, N := binary.Varint(b)
	e.Kind = Kind(k)
	b = b[N:]
	e.Err = UnmarshalError(b)
	return nil
}

// UnmarshalError unmarshals the byte slice into an error value. The byte
// slice must have been created by MarshalError or MarshalErrorAppend.
// If the encoded error was of type *Error, the returned error value will
// have that underlying type. Otherwise it will be just a simple value
// that implements the error interface.
func UnmarshalError(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	code := b[0]
	b = b[1:]
	switch code {
	case 'e':
		var data []byte
		data, b = getBytes(b)
		if len(b) != 0 {
			log.Printf("Unmarshal error: trailing bytes")
		}
		return Str(string(data))
	case 'E':
		var err Error
		err.UnmarshalBinary(b)
		return &err
	default:
		log.Printf("Unmarshal error: corrupt data %q", b)
		return Str(string(b))
	}
}

func appendString(b []byte, str string) []byte {
	var tmp [16]byte // For use by PutUvarint.
	N := binary.PutUvarint(tmp[:], uint64(len(str)))
	b = append(b, tmp[:N]...)
	b = append(b, str...)
	return b
}

// getBytes unmarshals the byte slice at b (uvarint count followed by
// bytes) and returns the slice followed by the remaining bytes.
// If the count claims more bytes than remain, both return values will be
// nil; if the count cannot be decoded, data is nil and remaining is b.
func getBytes(b []byte) (data, remaining []byte) {
	u, N := binary.Uvarint(b)
	if len(b) < N+int(u) {
		log.Printf("Unmarshal error: bad encoding")
		return nil, nil
	}
	if N == 0 {
		log.Printf("Unmarshal error: bad encoding")
		return nil, b
	}
	return b[N : N+int(u)], b[N+int(u):]
}
