// Package tgerr defines the error taxonomy of the client runtime
// (spec §7): nine distinct kinds, each exposing a structured code,
// category, and free-form message so an FFI layer can map it to a
// SQLSTATE-style string.
package tgerr

import (
	"fmt"
	"reflect"
)

// ErrContext is implemented by every concrete error context; message()
// renders the user-facing summary and the struct carries whatever
// structured fields the kind needs.
type ErrContext interface {
	message() string
	code() string
	category() string
}

// Error wraps an inner cause (if any) with a typed context, mirroring the
// reference client's generic Error[C ErrContext] wrapper.
type Error[C ErrContext] struct {
	Inner   error
	Context C
}

func (e Error[C]) Unwrap() error { return e.Inner }

func (e Error[C]) Error() string {
	msg := e.Context.message()
	if e.Inner != nil {
		return fmt.Sprintf("%s: %v", msg, e.Inner)
	}
	return msg
}

func (e Error[C]) Is(other error) bool {
	return reflect.TypeOf(e) == reflect.TypeOf(other)
}

// Code returns the structured machine code for this error (spec §7: "a
// structured machine code, a category name/number, and a free-form
// message").
func (e Error[C]) Code() string { return e.Context.code() }

// Category returns the category name for this error.
func (e Error[C]) Category() string { return e.Context.category() }

// --- kind 1: client error (caller misuse) -----------------------------------

type ErrClient = Error[ClientContext]

type ClientContext struct {
	Op string
}

func (c ClientContext) message() string  { return fmt.Sprintf("client error in %s", c.Op) }
func (c ClientContext) code() string     { return "TG-CLIENT" }
func (c ClientContext) category() string { return "client" }

func Client(op string, cause error) error {
	return ErrClient{Inner: cause, Context: ClientContext{Op: op}}
}

// --- kind 2: timeout ---------------------------------------------------------

type ErrTimeout = Error[TimeoutContext]

type TimeoutContext struct {
	Op string
}

func (c TimeoutContext) message() string  { return fmt.Sprintf("%s timed out", c.Op) }
func (c TimeoutContext) code() string     { return "TG-TIMEOUT" }
func (c TimeoutContext) category() string { return "timeout" }

func Timeout(op string) error {
	return ErrTimeout{Context: TimeoutContext{Op: op}}
}

// --- kind 3: transport error --------------------------------------------------

type ErrTransport = Error[TransportContext]

type TransportContext struct {
	Op string
}

func (c TransportContext) message() string  { return fmt.Sprintf("transport error during %s", c.Op) }
func (c TransportContext) code() string     { return "TG-TRANSPORT" }
func (c TransportContext) category() string { return "transport" }

func Transport(op string, cause error) error {
	return ErrTransport{Inner: cause, Context: TransportContext{Op: op}}
}

// --- kind 4: protocol decode error --------------------------------------------

type ErrDecode = Error[DecodeContext]

type DecodeContext struct {
	Op string
}

func (c DecodeContext) message() string  { return fmt.Sprintf("failed to decode %s", c.Op) }
func (c DecodeContext) code() string     { return "TG-DECODE" }
func (c DecodeContext) category() string { return "decode" }

func Decode(op string, cause error) error {
	return ErrDecode{Inner: cause, Context: DecodeContext{Op: op}}
}

// --- kind 5: broken encoding / broken relation -------------------------------

type ErrBrokenRelation = Error[BrokenRelationContext]

type BrokenRelationContext struct {
	Op string
}

func (c BrokenRelationContext) message() string { return fmt.Sprintf("broken relation encoding in %s", c.Op) }
func (c BrokenRelationContext) code() string     { return "TG-BROKEN-RELATION" }
func (c BrokenRelationContext) category() string { return "broken_relation" }

func BrokenRelation(op string, cause error) error {
	return ErrBrokenRelation{Inner: cause, Context: BrokenRelationContext{Op: op}}
}

// --- kind 6: server diagnostic -----------------------------------------------

type ErrServerDiagnostic = Error[ServerDiagnosticContext]

type ServerDiagnosticContext struct {
	DiagCode int32
	Message  string
}

func (c ServerDiagnosticContext) message() string {
	return fmt.Sprintf("server diagnostics: code=%d message=%s", c.DiagCode, c.Message)
}
func (c ServerDiagnosticContext) code() string     { return fmt.Sprintf("TG-DIAG-%d", c.DiagCode) }
func (c ServerDiagnosticContext) category() string { return "server_diagnostic" }

func ServerDiagnostic(diagCode int32, msg string) error {
	return ErrServerDiagnostic{Context: ServerDiagnosticContext{DiagCode: diagCode, Message: msg}}
}

// --- kind 7: service error ----------------------------------------------------

type ErrService = Error[ServiceContext]

type ServiceContext struct {
	ServiceCode  string
	Op           string
	Message      string
	CategoryName string
	CategoryNum  int32
}

func (c ServiceContext) message() string {
	return fmt.Sprintf("%s: %s (%s)", c.ServiceCode, c.Message, c.Op)
}
func (c ServiceContext) code() string { return c.ServiceCode }

// category returns the server's symbolic diagnostic category (e.g.
// "constraint_violation"), falling back to the op name for a diagnostic
// that never set one.
func (c ServiceContext) category() string {
	if c.CategoryName != "" {
		return c.CategoryName
	}
	return c.Op
}

// Service builds a kind-7 error from a server diagnostic: serviceCode and
// categoryNum are the server's structured code and category number, op
// names the client RPC that failed (e.g. "list-tables"), and category is
// the server's symbolic category name (e.g. "constraint_violation").
func Service(serviceCode, op, msg, category string, categoryNum int32) error {
	return ErrService{Context: ServiceContext{ServiceCode: serviceCode, Op: op, Message: msg, CategoryName: category, CategoryNum: categoryNum}}
}

// --- kind 8: IO error (local filesystem, LOB paths) --------------------------

type ErrIO = Error[IOContext]

type IOContext struct {
	Path string
}

func (c IOContext) message() string  { return fmt.Sprintf("io error for path %q", c.Path) }
func (c IOContext) code() string     { return "TG-IO" }
func (c IOContext) category() string { return "io" }

func IO(path string, cause error) error {
	return ErrIO{Inner: cause, Context: IOContext{Path: path}}
}

// --- kind 9: illegal argument (config rejected before any I/O) ---------------

type ErrIllegalArgument = Error[IllegalArgumentContext]

type IllegalArgumentContext struct {
	Name string
}

func (c IllegalArgumentContext) message() string  { return fmt.Sprintf("illegal argument: %s", c.Name) }
func (c IllegalArgumentContext) code() string     { return "TG-ILLEGAL-ARGUMENT" }
func (c IllegalArgumentContext) category() string { return "illegal_argument" }

func IllegalArgument(name string, cause error) error {
	return ErrIllegalArgument{Inner: cause, Context: IllegalArgumentContext{Name: name}}
}
