package server

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/sword"
)

// deposits per page of a collection listing
const pageSize = 100

// depositIRIs builds the IRI set for a deposit. IRIs are path absolute, so
// they work behind whatever host and proxy the server is deployed on.
func depositIRIs(collection string, id int64) sword.ReceiptIRIs {
	base := "/" + collection + "/" + strconv.FormatInt(id, 10)
	return sword.ReceiptIRIs{
		EditIRI:  base + "/atom/",
		EMIRI:    base + "/media/",
		SEIRI:    base + "/metadata/",
		StateIRI: base + "/status/",
		ContIRI:  base + "/content/",
	}
}

// CollectionGetHandler serves either the service document or one page of
// the collection's deposit feed.
//
// GET /servicedocument/
// GET /:collection/?page=N
func (s *RESTServer) CollectionGetHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	client, serr := s.findClient(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	name := ps.ByName("collection")
	if name == serviceDocumentPath {
		s.serviceDocument(w, client)
		return
	}

	col, err := s.DB.CollectionByName(name)
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	page := 1
	if p := r.FormValue("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeError(w, sword.BadRequest("page must be a positive integer"))
			return
		}
		page = n
	}
	deposits, total, err := s.DB.DepositsByCollection(col.ID, client.ID, (page-1)*pageSize, pageSize)
	if err != nil {
		writeError(w, dberror(err))
		return
	}

	feed := sword.NewFeed(col.Name, total)
	for _, d := range deposits {
		feed.Entries = append(feed.Entries, sword.FeedEntry{
			DepositID:   d.ID,
			DepositDate: d.ReceptionDate.UTC().Format(time.RFC3339),
			Status:      d.Status.String(),
			ExternalID:  d.ExternalID,
			EditIRI:     depositIRIs(col.Name, d.ID).EditIRI,
		})
	}
	if page > 1 {
		w.Header().Add("Link", pageLink(col.Name, page-1, "previous"))
	}
	if page*pageSize < total {
		w.Header().Add("Link", pageLink(col.Name, page+1, "next"))
	}
	writeDocument(w, http.StatusOK, sword.ContentAtom+";type=feed", feed)
}

func pageLink(collection string, page int, rel string) string {
	return fmt.Sprintf(`</%s/?page=%d>; rel="%s"`, collection, page, rel)
}

func (s *RESTServer) serviceDocument(w http.ResponseWriter, client *deposit.Client) {
	cols, err := s.DB.CollectionsForClient(client.ID)
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	doc := sword.NewServiceDocument(s.MaxUploadSize)
	for _, col := range cols {
		doc.AddCollection(col.Name, "/"+col.Name+"/")
	}
	writeDocument(w, http.StatusOK, "application/atomserv+xml", doc)
}

// CollectionPostHandler creates a deposit from an archive body, an atom
// entry body, a multipart body, or no body at all.
//
// POST /:collection/
func (s *RESTServer) CollectionPostHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	client, serr := s.findClient(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	col, err := s.DB.CollectionByName(ps.ByName("collection"))
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	info, serr := sword.ParseInfo(r)
	if serr != nil {
		writeError(w, serr)
		return
	}
	class := info.Class()
	if class == sword.BodyNone && info.ContentLength > 0 {
		writeError(w, sword.Errorf(sword.KindUnsupportedMediaType,
			fmt.Sprintf("cannot accept a body of type %q", info.ContentType)))
		return
	}

	d := &deposit.Deposit{
		ClientID:      client.ID,
		CollectionID:  col.ID,
		ExternalID:    info.Slug,
		ReceptionDate: time.Now().UTC(),
		Status:        deposit.StatusPartial,
		OriginURL:     deposit.OriginURL(client, info.Slug),
	}
	if info.Slug != "" {
		parent, err := s.DB.LastDoneDeposit(client.ID, info.Slug)
		switch err {
		case nil:
			pid := parent.ID
			d.ParentID = &pid
		case deposit.ErrNotFound:
			// first deposit under this external id
		default:
			writeError(w, dberror(err))
			return
		}
	}
	if err := s.DB.CreateDeposit(d); err != nil {
		writeError(w, dberror(err))
		return
	}

	switch class {
	case sword.BodyArchive:
		serr = s.receiveArchive(d, info, r.Body)
	case sword.BodyAtom:
		_, serr = s.receiveAtom(d, r.Body)
	case sword.BodyMultipart:
		serr = s.receiveMultipart(d, info, r)
	case sword.BodyNone:
		// empty create, requests arrive later
	}
	if serr != nil {
		// a failed create leaves nothing behind
		if derr := s.DB.DeleteDeposit(d.ID); derr != nil {
			log.Println("removing deposit", d.ID, "after failed create:", derr)
		}
		writeError(w, serr)
		return
	}

	// an empty create stays partial so the client can still populate it
	if class != sword.BodyNone && !info.InProgress {
		d, serr = s.finalize(d)
		if serr != nil {
			writeError(w, serr)
			return
		}
	}

	iris := depositIRIs(col.Name, d.ID)
	w.Header().Set("Location", iris.EditIRI)
	writeDocument(w, http.StatusCreated, sword.ContentAtom+";type=entry",
		sword.NewReceipt(d.ID, d.ReceptionDate, d.Status.String(), iris))
}
