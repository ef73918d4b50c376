package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/sword"
)

// EditPutHandler replaces the metadata of a partial deposit, or, on a done
// deposit carrying a matching X-Check-SWHID header, amends the metadata of
// an already archived deposit.
//
// PUT /:collection/:id/atom/
func (s *RESTServer) EditPutHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, d, serr := s.findClientDeposit(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	info, serr := sword.ParseInfo(r)
	if serr != nil {
		writeError(w, serr)
		return
	}

	if d.Status == deposit.StatusDone && info.CheckSWHID != "" {
		s.amendDoneDeposit(w, r, d, info)
		return
	}
	if serr = requireMutable(d); serr != nil {
		writeError(w, serr)
		return
	}

	// the old rows go away only after the replacement is stored, so a
	// refused body keeps the deposit as it was
	switch info.Class() {
	case sword.BodyAtom:
		old, serr := s.requestsOfType(d.ID, deposit.RequestMetadata)
		if serr != nil {
			writeError(w, serr)
			return
		}
		if _, serr = s.receiveAtom(d, r.Body); serr != nil {
			writeError(w, serr)
			return
		}
		if serr = s.removeRequests(old); serr != nil {
			writeError(w, serr)
			return
		}
	case sword.BodyMultipart:
		// a multipart PUT replaces both sides of the deposit
		old, serr := s.requestsOfType(d.ID, deposit.RequestMetadata, deposit.RequestArchive)
		if serr != nil {
			writeError(w, serr)
			return
		}
		if serr = s.receiveMultipart(d, info, r); serr != nil {
			writeError(w, serr)
			return
		}
		if serr = s.removeRequests(old); serr != nil {
			writeError(w, serr)
			return
		}
	default:
		writeError(w, sword.Errorf(sword.KindUnsupportedMediaType,
			"this IRI accepts atom entry or multipart bodies"))
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

// amendDoneDeposit accepts a metadata update on an archived deposit. The
// client proves it is talking about the right object by echoing the
// archived-object identifier; a mismatch is refused before anything is
// stored.
func (s *RESTServer) amendDoneDeposit(w http.ResponseWriter, r *http.Request, d *deposit.Deposit, info *sword.Info) {
	if info.CheckSWHID != d.SWHID {
		writeError(w, sword.BadRequest(fmt.Sprintf(
			"mismatched SWHID: deposit %d was archived as %s", d.ID, d.SWHID)))
		return
	}
	if info.Class() != sword.BodyAtom {
		writeError(w, sword.Errorf(sword.KindUnsupportedMediaType,
			"metadata amendments carry an atom entry body"))
		return
	}
	raw, serr := s.receiveAtom(d, r.Body)
	if serr != nil {
		writeError(w, serr)
		return
	}
	if s.Forwarder != nil {
		if err := s.Forwarder.ForwardMetadata(d, raw); err != nil {
			// the amendment is stored locally either way
			log.Println("forwarding metadata for deposit", d.ID, ":", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditDeleteHandler deletes a partial deposit entirely, stored payloads
// included.
//
// DELETE /:collection/:id/atom/
func (s *RESTServer) EditDeleteHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, d, serr := s.findClientDeposit(ps)
	if serr == nil {
		serr = requireMutable(d)
	}
	if serr != nil {
		writeError(w, serr)
		return
	}
	reqs, err := s.DB.Requests(d.ID)
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	if err := s.DB.DeleteDeposit(d.ID); err != nil {
		writeError(w, dberror(err))
		return
	}
	s.deletePayloads(reqs)
	w.WriteHeader(http.StatusNoContent)
}

// SwordEditPostHandler appends metadata (or metadata plus an archive) to a
// partial deposit, or finalizes it with an empty body.
//
// POST /:collection/:id/metadata/
func (s *RESTServer) SwordEditPostHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, d, serr := s.findClientDeposit(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	info, serr := sword.ParseInfo(r)
	if serr != nil {
		writeError(w, serr)
		return
	}

	if info.Class() == sword.BodyNone && info.ContentLength <= 0 {
		// the bodyless finalization request
		if info.InProgress {
			writeError(w, sword.BadRequest("an empty request must say In-Progress: false"))
			return
		}
		if d.Status == deposit.StatusDeposited {
			// finalizing twice is a no-op
			s.writeReceipt(w, http.StatusOK, ps.ByName("collection"), d)
			return
		}
		if serr = requireMutable(d); serr != nil {
			writeError(w, serr)
			return
		}
		d, serr = s.finalize(d)
		if serr != nil {
			writeError(w, serr)
			return
		}
		s.writeReceipt(w, http.StatusOK, ps.ByName("collection"), d)
		return
	}

	if serr = requireMutable(d); serr != nil {
		writeError(w, serr)
		return
	}
	switch info.Class() {
	case sword.BodyAtom:
		if _, serr = s.receiveAtom(d, r.Body); serr != nil {
			writeError(w, serr)
			return
		}
	case sword.BodyMultipart:
		if serr = s.receiveMultipart(d, info, r); serr != nil {
			writeError(w, serr)
			return
		}
	default:
		writeError(w, sword.Errorf(sword.KindUnsupportedMediaType,
			"this IRI accepts atom entry or multipart bodies"))
		return
	}
	if !info.InProgress {
		d, serr = s.finalize(d)
		if serr != nil {
			writeError(w, serr)
			return
		}
	}
	s.writeReceipt(w, http.StatusCreated, ps.ByName("collection"), d)
}

func (s *RESTServer) writeReceipt(w http.ResponseWriter, status int, collection string, d *deposit.Deposit) {
	iris := depositIRIs(collection, d.ID)
	w.Header().Set("Location", iris.EditIRI)
	writeDocument(w, status, sword.ContentAtom+";type=entry",
		sword.NewReceipt(d.ID, d.ReceptionDate, d.Status.String(), iris))
}

// StateHandler reports the deposit's lifecycle state.
//
// GET /:collection/:id/status/
func (s *RESTServer) StateHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, d, serr := s.findClientDeposit(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	writeDocument(w, http.StatusOK, sword.ContentAtom+";type=entry",
		sword.NewStateDocument(d.ID, d.Status.String(), d.StatusDetail.Text(), d.SWHID))
}

// ContentHandler serves the content summary document.
//
// GET /:collection/:id/content/
func (s *RESTServer) ContentHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, d, serr := s.findClientDeposit(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	writeDocument(w, http.StatusOK, sword.ContentAtom+";type=entry",
		sword.NewContentDocument(d.ID, d.ReceptionDate, d.Status.String(), d.StatusDetail.Text()))
}
