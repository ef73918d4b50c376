package server

import (
	"fmt"
	"log"
	"net/http"

	raven "github.com/getsentry/raven-go"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/sword"
)

// writeError maps a protocol error to its response. Auth failures get the
// basic auth challenge, maintenance gets a minimal body, and everything else
// gets the Atom error document carrying the error IRI.
func writeError(w http.ResponseWriter, e *sword.Error) {
	switch e.Kind {
	case sword.KindUnauthorized:
		w.Header().Set("WWW-Authenticate", `Basic realm="deposit"`)
		http.Error(w, e.Summary, e.HTTPStatus())
	case sword.KindMaintenance:
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(e.HTTPStatus())
		fmt.Fprintln(w, `<error>Service temporarily unavailable</error>`)
	default:
		w.Header().Set("Content-Type", sword.ContentAtom+";type=entry")
		w.WriteHeader(e.HTTPStatus())
		err := sword.WriteDocument(w, sword.NewErrorDocument(e))
		if err != nil {
			log.Println("writing error document:", err)
		}
	}
}

// writeDocument serializes an XML response document with the given status.
func writeDocument(w http.ResponseWriter, status int, contentType string, doc interface{}) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := sword.WriteDocument(w, doc); err != nil {
		log.Println("writing response document:", err)
	}
}

// dberror maps a data store error to a protocol error. Anything other than
// a missing row means the backing store is unhealthy, so the client gets the
// maintenance response and sentry gets the details.
func dberror(err error) *sword.Error {
	if err == deposit.ErrNotFound {
		return sword.NotFound()
	}
	log.Println("data store:", err)
	raven.CaptureError(err, nil)
	return sword.Errorf(sword.KindMaintenance, "service temporarily unavailable")
}

func unauthorized() *sword.Error {
	return sword.Errorf(sword.KindUnauthorized, "authentication required")
}
