package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/scheduler"
	"github.com/swordd/depositd/sword"
)

// The private IRIs serve the ingestion pipeline: pulling the payload and
// metadata of a deposit, running the checks, and reporting results back.

// RawHandler streams the deposit's payload as a single archive. A deposit
// with one archive is streamed as stored; several archives are extracted
// and re-packed into one zip first.
//
// GET /:collection/:id/raw/
func (s *RESTServer) RawHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	d, serr := s.findDeposit(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	reqs, err := s.DB.Requests(d.ID)
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	var archives []deposit.Request
	for _, req := range reqs {
		if req.Type == deposit.RequestArchive {
			archives = append(archives, req)
		}
	}
	switch len(archives) {
	case 0:
		writeError(w, sword.NotFound())
	case 1:
		s.streamStored(w, archives[0])
	default:
		s.streamAggregate(w, d, archives)
	}
}

func (s *RESTServer) streamStored(w http.ResponseWriter, req deposit.Request) {
	rc, size, err := s.Storage.Open(req.ArchiveKey)
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	defer rc.Close()
	contenttype := sword.ContentTar
	if strings.HasSuffix(req.ArchiveName, ".zip") {
		contenttype = sword.ContentZip
	}
	w.Header().Set("Content-Type", contenttype)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", req.ArchiveName))
	io.Copy(w, rc)
}

func (s *RESTServer) streamAggregate(w http.ResponseWriter, d *deposit.Deposit, archives []deposit.Request) {
	s.aggGate.Enter()
	defer s.aggGate.Leave()

	zippath, serr := s.aggregateArchives(d, archives)
	if serr != nil {
		writeError(w, serr)
		return
	}
	f, err := os.Open(zippath)
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	w.Header().Set("Content-Type", sword.ContentZip)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", fi.Size()))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("deposit-%d.zip", d.ID)))
	io.Copy(w, f)
}

// MetaHandler serves the deposit's merged metadata and its origin
// information as JSON.
//
// GET /:collection/:id/meta/
func (s *RESTServer) MetaHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	d, serr := s.findDeposit(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	client, err := s.DB.Client(d.ClientID)
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	col, err := s.DB.Collection(d.CollectionID)
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	reqs, err := s.DB.Requests(d.ID)
	if err != nil {
		writeError(w, dberror(err))
		return
	}

	var rawdocs []string
	merged := make(map[string]interface{})
	for _, req := range reqs {
		if req.Type != deposit.RequestMetadata {
			continue
		}
		rawdocs = append(rawdocs, string(req.RawMetadata))
		root, serr := sword.ParseEntry(strings.NewReader(string(req.RawMetadata)))
		if serr != nil {
			// stored metadata parsed at reception time; be forgiving
			log.Println("deposit", d.ID, "stored metadata does not parse:", serr)
			continue
		}
		mergeMetadata(merged, root)
	}

	doc := map[string]interface{}{
		"origin": map[string]interface{}{
			"type": "deposit",
			"url":  d.OriginURL,
		},
		"metadata_raw": rawdocs,
		"metadata":     merged,
		"provider": map[string]interface{}{
			"provider_name": client.Username,
			"provider_url":  client.ProviderURL,
			"provider_type": "deposit_client",
		},
		"deposit": map[string]interface{}{
			"id":             d.ID,
			"collection":     col.Name,
			"client":         client.Username,
			"external_id":    d.ExternalID,
			"reception_date": d.ReceptionDate.UTC().Format(time.RFC3339),
			"complete_date":  completeDate(d),
			"status":         d.Status.String(),
		},
	}
	writeJSON(w, http.StatusOK, doc)
}

func completeDate(d *deposit.Deposit) string {
	if d.CompleteDate.IsZero() {
		return ""
	}
	return d.CompleteDate.UTC().Format(time.RFC3339)
}

// prefixes used for the merged metadata keys
var nsPrefixes = map[string]string{
	sword.AtomNS:     "atom",
	sword.SwordNS:    "sword",
	sword.DCTermsNS:  "dcterms",
	sword.CodeMetaNS: "codemeta",
	sword.SwhNS:      "swh",
}

// mergeMetadata folds the children of an atom entry into the merged map.
// A repeated key collects its values into a list; scalars stay scalar.
func mergeMetadata(merged map[string]interface{}, root *sword.Node) {
	for _, child := range root.Children {
		key := child.Local
		if prefix, ok := nsPrefixes[child.Space]; ok {
			key = prefix + ":" + child.Local
		} else if child.Space != "" {
			key = child.Space + ":" + child.Local
		}
		value := nodeValue(child)
		switch existing := merged[key].(type) {
		case nil:
			merged[key] = value
		case []interface{}:
			merged[key] = append(existing, value)
		default:
			merged[key] = []interface{}{existing, value}
		}
	}
}

// nodeValue flattens one element: a leaf is its text, anything else is a
// map of its children.
func nodeValue(n *sword.Node) interface{} {
	if len(n.Children) == 0 {
		return n.Text
	}
	value := make(map[string]interface{})
	mergeMetadata(value, n)
	return value
}

func writeJSON(w http.ResponseWriter, status int, doc interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		log.Println("writing json response:", err)
	}
}

// CheckHandler runs the pre-ingestion checks on a deposited deposit and
// reports the resulting status. Running the checks succeeds even when the
// deposit is rejected, so the response is 200 either way.
//
// GET /:collection/:id/check/
func (s *RESTServer) CheckHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	d, serr := s.findDeposit(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	switch d.Status {
	case deposit.StatusPartial:
		writeError(w, sword.BadRequest(fmt.Sprintf("deposit %d is not complete yet", d.ID)))
		return
	case deposit.StatusDeposited:
		d, serr = s.runChecks(d)
		if serr != nil {
			writeError(w, serr)
			return
		}
	default:
		// already checked, report the stored verdict
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        d.Status.String(),
		"status_detail": d.StatusDetail,
	})
}

// updateRequest is the JSON body of the ingestion callback.
type updateRequest struct {
	Status       string          `json:"status"`
	SWHID        string          `json:"swhid"`
	ReleaseID    string          `json:"release_id"`
	DirectoryID  string          `json:"directory_id"`
	StatusDetail *deposit.Detail `json:"status_detail"`
}

// UpdateHandler is the callback the ingester reports through: loading when
// it picks the task up, done or failed when it finishes, and verified when
// an operator requeues a failed deposit.
//
// PUT /:collection/:id/update/
func (s *RESTServer) UpdateHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	d, serr := s.findDeposit(ps)
	if serr != nil {
		writeError(w, serr)
		return
	}
	var update updateRequest
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, sword.BadRequest("cannot decode the update body"))
		return
	}
	status := deposit.ParseStatus(update.Status)
	switch status {
	case deposit.StatusLoading, deposit.StatusDone, deposit.StatusFailed:
		// the ingester's own reports
	case deposit.StatusVerified:
		s.requeue(w, d)
		return
	default:
		writeError(w, sword.BadRequest(fmt.Sprintf("cannot update a deposit to status %q", update.Status)))
		return
	}
	if status == deposit.StatusDone && update.SWHID == "" {
		writeError(w, sword.BadRequest("a done report must carry the archived-object identifier"))
		return
	}

	_, err := s.DB.Mutate(d.ID, func(d *deposit.Deposit) error {
		d.Status = status
		if update.SWHID != "" {
			d.SWHID = update.SWHID
		}
		if update.StatusDetail != nil {
			d.StatusDetail = update.StatusDetail
		}
		return nil
	})
	if err == deposit.ErrBadTransition {
		writeError(w, sword.BadRequest(fmt.Sprintf(
			"deposit %d cannot go from %s to %s", d.ID, d.Status, status)))
		return
	}
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requeue puts a failed deposit back in the ingestion queue: a fresh task
// is scheduled and the stale result fields are cleared.
func (s *RESTServer) requeue(w http.ResponseWriter, d *deposit.Deposit) {
	taskid, err := s.Scheduler.Schedule(scheduler.NewLoadTask(d.OriginURL, d.ID))
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	_, err = s.DB.Mutate(d.ID, func(d *deposit.Deposit) error {
		d.Status = deposit.StatusVerified
		d.SWHID = ""
		d.LoadTaskID = taskid
		return nil
	})
	if err == deposit.ErrBadTransition {
		writeError(w, sword.BadRequest(fmt.Sprintf(
			"deposit %d has status %s and cannot be requeued", d.ID, d.Status)))
		return
	}
	if err != nil {
		writeError(w, dberror(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
