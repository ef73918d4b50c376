// Package sword implements the SWORD v2 protocol surface: request header
// extraction, Atom entry parsing and querying, the response documents, and
// the protocol error taxonomy.
package sword

import "net/http"

// Kind enumerates the protocol error taxonomy. Every non-2xx response the
// server produces maps to exactly one kind.
type Kind int

const (
	KindBadRequest Kind = iota
	KindParserError
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindMethodNotAllowed
	KindChecksumMismatch
	KindMediationNotAllowed
	KindMaxUploadSize
	KindUnsupportedMediaType
	KindMaintenance
)

// ErrorIRIBase is the base of the SWORD error IRIs carried on error
// documents.
const ErrorIRIBase = "http://purl.org/net/sword/error/"

var kindinfo = map[Kind]struct {
	status int
	suffix string
}{
	KindBadRequest:           {http.StatusBadRequest, "ErrorBadRequest"},
	KindParserError:          {http.StatusBadRequest, "ErrorBadRequest"},
	KindUnauthorized:         {http.StatusUnauthorized, ""},
	KindForbidden:            {http.StatusForbidden, ""},
	KindNotFound:             {http.StatusNotFound, ""},
	KindMethodNotAllowed:     {http.StatusMethodNotAllowed, "MethodNotAllowed"},
	KindChecksumMismatch:     {http.StatusPreconditionFailed, "ErrorChecksumMismatch"},
	KindMediationNotAllowed:  {http.StatusPreconditionFailed, "MediationNotAllowed"},
	KindMaxUploadSize:        {http.StatusRequestEntityTooLarge, "MaxUploadSizeExceeded"},
	KindUnsupportedMediaType: {http.StatusUnsupportedMediaType, "ErrorContent"},
	KindMaintenance:          {http.StatusServiceUnavailable, ""},
}

// An Error is a protocol level failure. It satisfies the error interface so
// handlers can return it through ordinary error plumbing; the response
// mapper turns it into an Atom error document.
type Error struct {
	Kind    Kind
	Summary string
	Verbose string // sword:verboseDescription, optional
}

func (e *Error) Error() string {
	return e.Summary
}

// HTTPStatus returns the status code the kind maps to.
func (e *Error) HTTPStatus() int {
	return kindinfo[e.Kind].status
}

// IRI returns the SWORD error IRI for the kind, or "" when the kind has
// none (auth failures and maintenance get plain responses).
func (e *Error) IRI() string {
	suffix := kindinfo[e.Kind].suffix
	if suffix == "" {
		return ""
	}
	return ErrorIRIBase + suffix
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, summary string) *Error {
	return &Error{Kind: kind, Summary: summary}
}

// Convenience constructors for the common kinds.

func BadRequest(summary string) *Error {
	return &Error{Kind: KindBadRequest, Summary: summary}
}

func NotFound() *Error {
	return &Error{Kind: KindNotFound, Summary: "deposit or collection not found"}
}

func MethodNotAllowed() *Error {
	return &Error{Kind: KindMethodNotAllowed, Summary: "method not allowed on this IRI"}
}
