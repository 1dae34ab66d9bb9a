// Package coreerr defines the typed error kinds shared across mdljarm's
// codec, COSE, key-material, builder, verifier, and JARM packages.
package coreerr

import "fmt"

// Kind is a machine-readable error classification.
type Kind string

const (
	// Parse errors.
	KindTruncatedInput            Kind = "TruncatedInput"
	KindInvalidMajorType          Kind = "InvalidMajorType"
	KindUnsupportedIndefiniteForm Kind = "UnsupportedIndefiniteForm"
	KindInvalidASN1               Kind = "InvalidASN1"
	KindUnsupportedCurveOID       Kind = "UnsupportedCurveOID"
	KindInvalidPEM                Kind = "InvalidPEM"

	// Schema errors.
	KindMissingField         Kind = "MissingField"
	KindUnsupportedAlg       Kind = "UnsupportedAlg"
	KindInvalidModulusLength Kind = "InvalidModulusLength"

	// Crypto errors.
	KindSignatureInvalid Kind = "SignatureInvalid"
	KindMacInvalid       Kind = "MacInvalid"
	KindKeyNotExtractable Kind = "KeyNotExtractable"
	KindKeyTypeMismatch  Kind = "KeyTypeMismatch"

	// Policy errors.
	KindStateMismatch        Kind = "StateMismatch"
	KindNotSignedOrEncrypted Kind = "NotSignedOrEncrypted"
	KindReceivedErrorResponse Kind = "ReceivedErrorResponse"

	// Builder errors.
	KindEmptyPresentationDefinition Kind = "EmptyPresentationDefinition"
	KindDuplicateInputDescriptorId  Kind = "DuplicateInputDescriptorId"
	KindHandoverNotSet              Kind = "HandoverNotSet"
	KindKeyNotSet                   Kind = "KeyNotSet"
	KindDocTypeNotFound             Kind = "DocTypeNotFound"

	// Internal.
	KindCapabilityFailure Kind = "CapabilityFailure"
)

// Error is the concrete error type returned by every mdljarm package.
// It always carries a machine-readable Kind, an optional human Message,
// and an optional wrapped Cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Cause == nil {
		return string(e.Kind)
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, &Error{Kind: KindX}) to match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error with a message and no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error with a message and a wrapped cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Capability wraps a failure from a host-provided capability (CryptoContext,
// X509Context, JoseContext, OpenID4VPContext) in the Internal kind required
// by the error model.
func Capability(cause error) *Error {
	return &Error{Kind: KindCapabilityFailure, Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and the zero
// Kind with ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if asError(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
