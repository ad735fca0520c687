// Package errors provides the driver's structured error hierarchy.
//
// Every error the driver raises carries a Kind drawn from the DB-API
// style taxonomy described below, a message, optional context fields,
// and an optional wrapped cause. Kinds follow a hierarchy of their own:
//
//   - Warning: non-fatal condition the server reported.
//   - Error: base kind, used only when nothing more specific applies.
//   - InterfaceError: client/protocol framing failure (bad startup
//     parameters, unrecognised auth method, TLS refusal).
//   - DatabaseError: base for server-reported failures.
//   - OperationalError: failure outside the program's control (lost
//     connection, timeout).
//   - IntegrityError: constraint violation (duplicate key).
//   - InternalError: server-reported internal inconsistency.
//   - ProgrammingError: caller misuse (bad SQL, TPC verb out of order).
//   - NotSupportedError: no codec for a host value or wire type.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Kind identifies which branch of the error hierarchy an Error belongs to.
type Kind int

const (
	KindWarning Kind = iota
	KindError
	KindInterface
	KindDatabase
	KindOperational
	KindIntegrity
	KindInternal
	KindProgramming
	KindNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindWarning:
		return "Warning"
	case KindError:
		return "Error"
	case KindInterface:
		return "InterfaceError"
	case KindDatabase:
		return "DatabaseError"
	case KindOperational:
		return "OperationalError"
	case KindIntegrity:
		return "IntegrityError"
	case KindInternal:
		return "InternalError"
	case KindProgramming:
		return "ProgrammingError"
	case KindNotSupported:
		return "NotSupportedError"
	default:
		return "UnknownError"
	}
}

// Error is a structured error with kind, context, and optional cause.
type Error struct {
	Kind    Kind
	Message string

	// SQLState is the five-character SQLSTATE code, set when the error
	// originated in a server ErrorResponse.
	SQLState string

	// Fields holds arbitrary context: for wire errors, the raw
	// ErrorResponse field map keyed by its single-byte field code
	// ('S', 'V', 'C', 'M', 'D', 'H', 'P', 'p', 'q', 'W', 's', 't',
	// 'c', 'd', 'n', 'F', 'L', 'R'); for local errors, whatever the
	// caller attached with WithField. Both 'S' and 'V' are stored
	// independently rather than one overwriting the other: older
	// servers only send 'S' (localized severity), newer ones add 'V'
	// (non-localized) alongside it.
	Fields map[string]interface{}

	Cause error
	Stack []Frame
	Time  time.Time
}

// Frame is one entry of a captured stack trace.
type Frame struct {
	Function string
	File     string
	Line     int
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.SQLState != "" {
		fmt.Fprintf(&b, " [%s]", e.SQLState)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Format implements fmt.Formatter; %+v prints fields, cause and stack.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s %s: %s\n", e.Time.Format(time.RFC3339), e.Kind, e.Message)
			if e.SQLState != "" {
				fmt.Fprintf(f, "  SQLSTATE: %s\n", e.SQLState)
			}
			if len(e.Fields) > 0 {
				fmt.Fprintf(f, "  Context:\n")
				for k, v := range e.Fields {
					fmt.Fprintf(f, "    %s: %v\n", k, v)
				}
			}
			if e.Cause != nil {
				fmt.Fprintf(f, "  Caused by: %v\n", e.Cause)
			}
			for _, fr := range e.Stack {
				fmt.Fprintf(f, "    %s\n      %s:%d\n", fr.Function, fr.File, fr.Line)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(f, e.Error())
	case 'q':
		fmt.Fprintf(f, "%q", e.Error())
	}
}

// WithField adds a context field and returns e for chaining.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// Builder helps construct an Error fluently, mirroring the connection
// engine's habit of attaching context as it unwinds from a failed read.
type Builder struct {
	kind    Kind
	message string
	state   string
	cause   error
	fields  map[string]interface{}
	stack   bool
}

func build(kind Kind, message string) *Builder {
	return &Builder{kind: kind, message: message}
}

func buildf(kind Kind, format string, args ...interface{}) *Builder {
	return &Builder{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Interfacef starts building an InterfaceError.
func Interfacef(format string, args ...interface{}) *Builder {
	return buildf(KindInterface, format, args...)
}

// Operationalf starts building an OperationalError.
func Operationalf(format string, args ...interface{}) *Builder {
	return buildf(KindOperational, format, args...)
}

// Programmingf starts building a ProgrammingError.
func Programmingf(format string, args ...interface{}) *Builder {
	return buildf(KindProgramming, format, args...)
}

// NotSupportedf starts building a NotSupportedError.
func NotSupportedf(format string, args ...interface{}) *Builder {
	return buildf(KindNotSupported, format, args...)
}

// Internalf starts building an InternalError; captures a stack trace.
func Internalf(format string, args ...interface{}) *Builder {
	return buildf(KindInternal, format, args...).WithStack()
}

// Integrityf starts building an IntegrityError.
func Integrityf(format string, args ...interface{}) *Builder {
	return buildf(KindIntegrity, format, args...)
}

// Wrap wraps cause with a kind and message.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Builder {
	return &Builder{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

// WithCause attaches a wrapped error.
func (b *Builder) WithCause(err error) *Builder {
	b.cause = err
	return b
}

// WithField attaches a context field.
func (b *Builder) WithField(key string, value interface{}) *Builder {
	if b.fields == nil {
		b.fields = make(map[string]interface{})
	}
	b.fields[key] = value
	return b
}

// WithSQLState attaches a SQLSTATE code.
func (b *Builder) WithSQLState(state string) *Builder {
	b.state = state
	return b
}

// WithStack captures the current call stack.
func (b *Builder) WithStack() *Builder {
	b.stack = true
	return b
}

// Build finalizes the Error.
func (b *Builder) Build() *Error {
	e := &Error{
		Kind:     b.kind,
		Message:  b.message,
		SQLState: b.state,
		Cause:    b.cause,
		Fields:   b.fields,
		Time:     time.Now(),
	}
	if b.stack {
		e.Stack = captureStack(2)
	}
	return e
}

// Err returns Build() as the error interface, for use in a return statement.
func (b *Builder) Err() error {
	return b.Build()
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	callerFrames := runtime.CallersFrames(pcs)
	for {
		frame, more := callerFrames.Next()
		if !more {
			break
		}
		if strings.Contains(frame.Function, "runtime.") {
			continue
		}
		frames = append(frames, Frame{Function: frame.Function, File: frame.File, Line: frame.Line})
		if len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FromWire builds an Error from a parsed ErrorResponse/NoticeResponse
// field map. SQLSTATE 28000 maps to InterfaceError, 23505 to
// IntegrityError; every other SQLSTATE maps to ProgrammingError, per the
// driver's error code mapping.
func FromWire(fields map[byte]string) *Error {
	sqlState := fields['C']
	kind := KindProgramming
	switch sqlState {
	case "28000":
		kind = KindInterface
	case "23505":
		kind = KindIntegrity
	}
	msg := fields['M']
	if msg == "" {
		msg = "server reported an error with no message"
	}
	ctx := make(map[string]interface{}, len(fields))
	for code, v := range fields {
		ctx[string(code)] = v
	}
	return &Error{
		Kind:     kind,
		Message:  msg,
		SQLState: sqlState,
		Fields:   ctx,
		Time:     time.Now(),
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// OfKind reports whether err (or something it wraps) is an *Error of kind.
func OfKind(err error, kind Kind) bool {
	var e *Error
	if As(err, &e) {
		return e.Kind == kind
	}
	return false
}
