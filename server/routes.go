// Package server implements the SWORD v2 deposit API: the public IRIs used
// by producers to assemble deposits, and the private IRIs used by the
// ingestion pipeline to pull bytes and push results back.
package server

import (
	"log"
	"net/http"
	"time"

	"github.com/facebookgo/httpdown"
	"github.com/julienschmidt/httprouter"
	"github.com/robfig/cron/v3"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/scheduler"
	"github.com/swordd/depositd/store"
	"github.com/swordd/depositd/sword"
	"github.com/swordd/depositd/util"
)

// Version is the server version string reported in logs.
const Version = "1.2.0"

// RESTServer holds the configuration for a deposit server.
//
// Set all the public fields and then call Run. Run will listen on the given
// port and handle requests. Do not change any fields after calling Run.
type RESTServer struct {
	// Port number to listen on. Defaults to 5006.
	PortNumber string

	// DB is the deposit data store. Run will panic if DB is nil.
	DB deposit.DB

	// Storage keeps the uploaded archive payloads. Run will panic if
	// Storage is nil.
	Storage store.Store

	// Scheduler receives the one-shot ingestion tasks. If nil, tasks are
	// collected in memory (useful for development).
	Scheduler scheduler.Scheduler

	// Forwarder receives metadata amendments made on done deposits. If
	// nil, amendments are only stored locally.
	Forwarder MetadataForwarder

	// MaxUploadSize caps request bodies carrying files, in bytes.
	MaxUploadSize int64

	// ChecksEnabled controls whether a successful check also schedules
	// the ingestion task.
	ChecksEnabled bool

	// ExtractionDir is the workspace root used when aggregating a
	// multi-archive deposit into a single payload.
	ExtractionDir string

	// ExpireAfter is the grace period before a stale partial deposit is
	// expired by the janitor. Zero disables the expiry sweep.
	ExpireAfter time.Duration

	// CleanupSchedule is the cron schedule of the janitor. Defaults to
	// hourly.
	CleanupSchedule string

	// PrivateUsers authenticates the ingestion side of the API. Keys are
	// usernames, values the passwords.
	PrivateUsers map[string]string

	server  httpdown.Server
	cron    *cron.Cron
	aggGate util.Gate
}

// the number of simultaneous archive aggregations we allow. Each one holds
// an extraction workspace on disk while it runs.
const maxConcurrentAggregations = 4

// Run initializes the background goroutines and then blocks listening for
// and handling http requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting deposit server version %s", Version)

	if s.DB == nil {
		panic("No data store given. DB is nil.")
	}
	if s.Storage == nil {
		panic("No payload store given. Storage is nil.")
	}
	if s.Scheduler == nil {
		log.Println("No scheduler given, collecting tasks in memory")
		s.Scheduler = scheduler.NewMemory()
	}
	if s.PortNumber == "" {
		s.PortNumber = "5006"
	}
	if s.MaxUploadSize == 0 {
		s.MaxUploadSize = 200 * 1024 * 1024
	}
	s.aggGate = util.NewGate(maxConcurrentAggregations)

	s.startJanitor()

	log.Println("Listening on", s.PortNumber)
	h := httpdown.HTTP{}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.addRoutes(),
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop will stop the server and return when all the server goroutines have
// exited and the socket closed.
func (s *RESTServer) Stop() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return s.server.Stop()
}

func (s *RESTServer) addRoutes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		private bool // true means the ingester credentials are required
		handler httprouter.Handle
	}{
		// the public SWORD IRIs. The service document is handled inside
		// the collection GET since httprouter cannot mix a static
		// segment with the :collection wildcard.
		{"GET", "/:collection/", false, s.CollectionGetHandler},
		{"POST", "/:collection/", false, s.CollectionPostHandler},
		{"POST", "/:collection/:id/media/", false, s.MediaPostHandler},
		{"PUT", "/:collection/:id/media/", false, s.MediaPutHandler},
		{"DELETE", "/:collection/:id/media/", false, s.MediaDeleteHandler},
		{"PUT", "/:collection/:id/atom/", false, s.EditPutHandler},
		{"DELETE", "/:collection/:id/atom/", false, s.EditDeleteHandler},
		{"POST", "/:collection/:id/metadata/", false, s.SwordEditPostHandler},
		{"GET", "/:collection/:id/status/", false, s.StateHandler},
		{"GET", "/:collection/:id/content/", false, s.ContentHandler},

		// the private IRIs used by the ingestion pipeline
		{"GET", "/:collection/:id/raw/", true, s.RawHandler},
		{"GET", "/:collection/:id/meta/", true, s.MetaHandler},
		{"GET", "/:collection/:id/check/", true, s.CheckHandler},
		{"PUT", "/:collection/:id/update/", true, s.UpdateHandler},
	}

	r := httprouter.New()
	// the trailing-slash redirect would preempt the 405 handler below
	// (e.g. DELETE on the Col-IRI), so every IRI must be spelled exactly
	r.RedirectTrailingSlash = false
	for _, route := range routes {
		var h httprouter.Handle
		if route.private {
			h = s.privateAuthWrapper(route.handler)
		} else {
			h = s.publicAuthWrapper(route.handler)
		}
		r.Handle(route.method, route.route, logWrapper(h))
	}
	// refused verbs get the protocol error document, not a bare 405
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, sword.MethodNotAllowed())
	})
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, sword.NotFound())
	})
	return r
}

// logWrapper takes a handler and returns a handler which does the same
// thing, after first logging the request.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.Println(r.Method, r.URL)
		handler(w, r, ps)
	}
}
