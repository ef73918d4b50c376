package deposit

import (
	"strings"
	"time"
)

// A Client is an external producer allowed to push deposits: a publication
// platform, a forge, or a research repository. Clients are provisioned out
// of band; the protocol engine only ever reads them.
type Client struct {
	ID          int64
	Username    string
	Secret      string  // opaque credential, compared verbatim
	Collections []int64 // collection ids the client may deposit into
	ProviderURL string  // URL prefix the client's origins must match
	Domain      string
}

// A Collection groups deposits. Its name is the path segment in the IRIs.
type Collection struct {
	ID   int64
	Name string
}

// Status is the lifecycle state of a deposit.
type Status int

const (
	StatusUnknown   Status = iota
	StatusPartial          // accepting more requests
	StatusDeposited        // complete, waiting for checks
	StatusRejected         // checks failed (terminal)
	StatusVerified         // checks passed, load task submitted
	StatusLoading          // ingester is working
	StatusDone             // ingested successfully (terminal)
	StatusFailed           // ingestion failed (terminal)
	StatusExpired          // stale partial reaped by the janitor (terminal)
)

var statusNames = map[Status]string{
	StatusPartial:   "partial",
	StatusDeposited: "deposited",
	StatusRejected:  "rejected",
	StatusVerified:  "verified",
	StatusLoading:   "loading",
	StatusDone:      "done",
	StatusFailed:    "failed",
	StatusExpired:   "expired",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus maps a status name to its Status. Unknown names give
// StatusUnknown.
func ParseStatus(name string) Status {
	for s, n := range statusNames {
		if n == strings.ToLower(name) {
			return s
		}
	}
	return StatusUnknown
}

// A Deposit is one submission being assembled, checked, and handed to the
// ingester.
type Deposit struct {
	ID            int64
	ClientID      int64
	CollectionID  int64
	ExternalID    string    // client supplied Slug, advisory only
	ReceptionDate time.Time
	CompleteDate  time.Time // set when the deposit leaves partial
	Status        Status
	StatusDetail  *Detail   // nil when there is nothing to report
	OriginURL     string
	ParentID      *int64    // newest past done deposit with the same external id
	SWHID         string    // archived-object identifier, set by the ingester
	LoadTaskID    string    // ingestion task id, set at scheduling time
}

// RequestType tags the two kinds of deposit requests.
type RequestType string

const (
	RequestArchive  RequestType = "archive"
	RequestMetadata RequestType = "metadata"
)

// A Request is one body received for a deposit: either a stored archive or
// a metadata document. Requests are totally ordered by ID within a deposit;
// that order is the canonical order for aggregation.
type Request struct {
	ID        int64
	DepositID int64
	Type      RequestType
	Date      time.Time

	// archive requests
	ArchiveName string // client supplied filename
	ArchiveKey  string // key of the payload in the object store
	ArchiveSize int64
	ArchiveMD5  string // hex digest of the stored payload

	// metadata requests
	RawMetadata []byte
}

// A TemporaryArchive records an extraction workspace awaiting cleanup by
// the janitor.
type TemporaryArchive struct {
	ID      int64
	Path    string
	Created time.Time
}

// A DetailEntry is one problem or warning found by the validators.
type DetailEntry struct {
	Summary string   `json:"summary"`
	Fields  []string `json:"fields,omitempty"`
}

// Detail is the structured status detail stored on a deposit. Keys mirror
// the subsystem that produced the entries.
type Detail struct {
	Metadata []DetailEntry `json:"metadata,omitempty"`
	Archive  []DetailEntry `json:"archive,omitempty"`
	URL      []DetailEntry `json:"url,omitempty"`
}

// Empty reports whether the detail carries no entries at all.
func (d *Detail) Empty() bool {
	return d == nil || (len(d.Metadata) == 0 && len(d.Archive) == 0 && len(d.URL) == 0)
}

// Text flattens the detail into a human readable string for the state
// document.
func (d *Detail) Text() string {
	if d.Empty() {
		return ""
	}
	var pieces []string
	add := func(prefix string, entries []DetailEntry) {
		for _, e := range entries {
			s := prefix + ": " + e.Summary
			if len(e.Fields) > 0 {
				s += " (" + strings.Join(e.Fields, ", ") + ")"
			}
			pieces = append(pieces, s)
		}
	}
	add("metadata", d.Metadata)
	add("archive", d.Archive)
	add("url", d.URL)
	return strings.Join(pieces, "; ")
}

// OriginURL derives the origin for a deposit from the owning client's
// provider URL and the client supplied external id. The provider URL is
// right-trimmed of slashes and re-suffixed with a single one.
func OriginURL(client *Client, externalID string) string {
	if externalID == "" {
		return ""
	}
	return strings.TrimRight(client.ProviderURL, "/") + "/" + strings.Trim(externalID, "/")
}
