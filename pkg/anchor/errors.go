package anchor

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an engine failure.
type Kind string

// Error kinds.
const (
	KindProgramMismatch              Kind = "ProgramMismatch"
	KindUnknownInstruction           Kind = "UnknownInstruction"
	KindDecodeError                  Kind = "DecodeError"
	KindArityMismatch                Kind = "ArityMismatch"
	KindOwnerMismatch                Kind = "OwnerMismatch"
	KindAccountDiscriminatorMismatch Kind = "AccountDiscriminatorMismatch"
	KindMissingSigner                Kind = "MissingSigner"
	KindNotWritable                  Kind = "NotWritable"
	KindNotExecutable                Kind = "NotExecutable"
	KindAddressMismatch              Kind = "AddressMismatch"
	KindDerivationMismatch           Kind = "DerivationMismatch"
	KindRelationshipViolation        Kind = "RelationshipViolation"
	KindHandlerError                 Kind = "HandlerError"
)

// Sentinels for errors.Is. Matching compares Kind only.
var (
	ErrProgramMismatch              = &Error{Kind: KindProgramMismatch}
	ErrUnknownInstruction           = &Error{Kind: KindUnknownInstruction}
	ErrDecodeError                  = &Error{Kind: KindDecodeError}
	ErrArityMismatch                = &Error{Kind: KindArityMismatch}
	ErrOwnerMismatch                = &Error{Kind: KindOwnerMismatch}
	ErrAccountDiscriminatorMismatch = &Error{Kind: KindAccountDiscriminatorMismatch}
	ErrMissingSigner                = &Error{Kind: KindMissingSigner}
	ErrNotWritable                  = &Error{Kind: KindNotWritable}
	ErrNotExecutable                = &Error{Kind: KindNotExecutable}
	ErrAddressMismatch              = &Error{Kind: KindAddressMismatch}
	ErrDerivationMismatch           = &Error{Kind: KindDerivationMismatch}
	ErrRelationshipViolation        = &Error{Kind: KindRelationshipViolation}
	ErrHandlerError                 = &Error{Kind: KindHandlerError}
)

// Schema registration errors. These surface at startup, never per call.
var (
	ErrDuplicateInstruction = errors.New("anchor: duplicate instruction discriminator")
	ErrDuplicateField       = errors.New("anchor: duplicate account field")
	ErrForwardReference     = errors.New("anchor: constraint references a field that is not bound before it")
	ErrInvalidConstraint    = errors.New("anchor: invalid constraint")
	ErrSealed               = errors.New("anchor: program is sealed")
)

// Error is the single failure a call reports. It carries enough context for
// the caller to decide whether to resubmit.
type Error struct {
	Kind        Kind
	Phase       Phase
	Instruction string
	// Field is the schema field the failure is attributed to, if any.
	Field string
	// Offset is the payload byte offset for KindDecodeError.
	Offset int
	// Code and Message are set by handlers for KindHandlerError.
	Code    uint32
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Instruction != "" {
		fmt.Fprintf(&b, " in %s", e.Instruction)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (account %q)", e.Field)
	}
	switch e.Kind {
	case KindDecodeError:
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	case KindHandlerError:
		fmt.Fprintf(&b, " code %d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches any *Error of the same kind, so the Err* sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of an engine error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewHandlerError builds the error a handler returns for a business-rule
// failure.
func NewHandlerError(code uint32, message string) *Error {
	return &Error{Kind: KindHandlerError, Code: code, Message: message}
}

func fieldError(kind Kind, field, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}
