package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/sword"
)

// The edit-media IRI manipulates the binary side of a partial deposit:
// POST appends an archive, PUT replaces every archive, DELETE removes them.

// MediaPostHandler appends one archive to a partial deposit.
//
// POST /:collection/:id/media/
func (s *RESTServer) MediaPostHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, d, serr := s.findClientDeposit(ps)
	if serr == nil {
		serr = requireMutable(d)
	}
	if serr != nil {
		writeError(w, serr)
		return
	}
	info, serr := sword.ParseInfo(r)
	if serr != nil {
		writeError(w, serr)
		return
	}
	if info.Class() != sword.BodyArchive {
		writeError(w, sword.Errorf(sword.KindUnsupportedMediaType,
			"this IRI accepts application/zip or application/x-tar bodies"))
		return
	}
	if serr = s.receiveArchive(d, info, r.Body); serr != nil {
		writeError(w, serr)
		return
	}
	if !info.InProgress {
		d, serr = s.finalize(d)
		if serr != nil {
			writeError(w, serr)
			return
		}
	}
	iris := depositIRIs(ps.ByName("collection"), d.ID)
	w.Header().Set("Location", iris.ContIRI)
	writeDocument(w, http.StatusCreated, sword.ContentAtom+";type=entry",
		sword.NewReceipt(d.ID, d.ReceptionDate, d.Status.String(), iris))
}

// MediaPutHandler replaces every archive of a partial deposit with the one
// in the request body.
//
// PUT /:collection/:id/media/
func (s *RESTServer) MediaPutHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, d, serr := s.findClientDeposit(ps)
	if serr == nil {
		serr = requireMutable(d)
	}
	if serr != nil {
		writeError(w, serr)
		return
	}
	info, serr := sword.ParseInfo(r)
	if serr != nil {
		writeError(w, serr)
		return
	}
	if info.Class() != sword.BodyArchive {
		writeError(w, sword.Errorf(sword.KindUnsupportedMediaType,
			"this IRI accepts application/zip or application/x-tar bodies"))
		return
	}
	// the old archives go away only after the replacement is stored, so
	// a refused body keeps the deposit as it was
	old, serr := s.requestsOfType(d.ID, deposit.RequestArchive)
	if serr != nil {
		writeError(w, serr)
		return
	}
	if serr = s.receiveArchive(d, info, r.Body); serr != nil {
		writeError(w, serr)
		return
	}
	if serr = s.removeRequests(old); serr != nil {
		writeError(w, serr)
		return
	}
	if !info.InProgress {
		if _, serr = s.finalize(d); serr != nil {
			writeError(w, serr)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// MediaDeleteHandler removes every archive from a partial deposit.
//
// DELETE /:collection/:id/media/
func (s *RESTServer) MediaDeleteHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, d, serr := s.findClientDeposit(ps)
	if serr == nil {
		serr = requireMutable(d)
	}
	if serr == nil {
		serr = s.dropRequests(d.ID, deposit.RequestArchive)
	}
	if serr != nil {
		writeError(w, serr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
