package sword

import (
	"encoding/xml"
	"io"
	"time"
)

// This file holds the response documents the server serializes: the service
// document, the deposit receipt, the state document, the collection feed,
// and the error document. They marshal with literal namespace prefixes so
// the output matches the canonical SWORD documents byte for byte, no matter
// what prefixes the client used.

// WriteDocument marshals doc to w with the standard XML header.
func WriteDocument(w io.Writer, doc interface{}) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	return enc.Encode(doc)
}

// A Link is an atom:link element.
type Link struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr,omitempty"`
}

// ErrorDocument is the Atom error document returned on every non-2xx
// response (5xx maintenance responses excepted).
type ErrorDocument struct {
	XMLName    xml.Name `xml:"sword:error"`
	XmlnsSword string   `xml:"xmlns:sword,attr"`
	XmlnsAtom  string   `xml:"xmlns:atom,attr"`
	Href       string   `xml:"href,attr,omitempty"`
	Title      string   `xml:"atom:title"`
	Updated    string   `xml:"atom:updated"`
	Summary    string   `xml:"atom:summary"`
	Verbose    string   `xml:"sword:verboseDescription,omitempty"`
}

// NewErrorDocument builds the error document for e.
func NewErrorDocument(e *Error) *ErrorDocument {
	return &ErrorDocument{
		XmlnsSword: SwordNS,
		XmlnsAtom:  AtomNS,
		Href:       e.IRI(),
		Title:      "ERROR",
		Updated:    time.Now().UTC().Format(time.RFC3339),
		Summary:    e.Summary,
		Verbose:    e.Verbose,
	}
}

// ServiceDocument advertises the collections a client may deposit into.
type ServiceDocument struct {
	XMLName       xml.Name `xml:"service"`
	Xmlns         string   `xml:"xmlns,attr"` // the app namespace
	XmlnsAtom     string   `xml:"xmlns:atom,attr"`
	XmlnsSword    string   `xml:"xmlns:sword,attr"`
	Version       string   `xml:"sword:version"`
	MaxUploadSize int64    `xml:"sword:maxUploadSize"`
	Workspace     Workspace
}

// Workspace is the single app:workspace of the service document.
type Workspace struct {
	XMLName     xml.Name `xml:"workspace"`
	Title       string   `xml:"atom:title"`
	Collections []ServiceCollection
}

// ServiceCollection is one app:collection entry.
type ServiceCollection struct {
	XMLName         xml.Name `xml:"collection"`
	Href            string   `xml:"href,attr"`
	Title           string   `xml:"atom:title"`
	Accept          []string `xml:"accept"`
	AcceptPackaging string   `xml:"sword:acceptPackaging"`
}

// NewServiceDocument builds the service document skeleton. The caller adds
// collections.
func NewServiceDocument(maxUploadSize int64) *ServiceDocument {
	return &ServiceDocument{
		Xmlns:         AppNS,
		XmlnsAtom:     AtomNS,
		XmlnsSword:    SwordNS,
		Version:       "2.0",
		MaxUploadSize: maxUploadSize,
		Workspace: Workspace{
			Title: "The software archive",
		},
	}
}

// AddCollection appends one collection advertisement.
func (sd *ServiceDocument) AddCollection(name, href string) {
	sd.Workspace.Collections = append(sd.Workspace.Collections, ServiceCollection{
		Href:            href,
		Title:           name,
		Accept:          []string{ContentZip, ContentTar},
		AcceptPackaging: PackagingSimpleZip,
	})
}

// Receipt is the deposit receipt entry returned from create and append
// operations.
type Receipt struct {
	XMLName     xml.Name `xml:"atom:entry"`
	XmlnsAtom   string   `xml:"xmlns:atom,attr"`
	XmlnsSword  string   `xml:"xmlns:sword,attr"`
	XmlnsSwh    string   `xml:"xmlns:swh,attr"`
	ID          string   `xml:"atom:id"`
	Title       string   `xml:"atom:title,omitempty"`
	Updated     string   `xml:"atom:updated"`
	DepositID   int64    `xml:"swh:deposit_id"`
	DepositDate string   `xml:"swh:deposit_date"`
	Status      string   `xml:"swh:deposit_status"`
	Links       []Link   `xml:"atom:link"`
	Packaging   string   `xml:"sword:packaging"`
	Treatment   string   `xml:"sword:treatment"`
}

// ReceiptIRIs carries the endpoint URLs woven into a receipt.
type ReceiptIRIs struct {
	EditIRI  string
	EMIRI    string
	SEIRI    string
	StateIRI string
	ContIRI  string
}

// NewReceipt builds a deposit receipt.
func NewReceipt(depositID int64, date time.Time, status string, iris ReceiptIRIs) *Receipt {
	r := &Receipt{
		XmlnsAtom:   AtomNS,
		XmlnsSword:  SwordNS,
		XmlnsSwh:    SwhNS,
		ID:          iris.EditIRI,
		Updated:     time.Now().UTC().Format(time.RFC3339),
		DepositID:   depositID,
		DepositDate: date.UTC().Format(time.RFC3339),
		Status:      status,
		Packaging:   PackagingSimpleZip,
		Treatment:   "stored and queued for long term archival",
		Links: []Link{
			{Rel: "edit", Href: iris.EditIRI, Type: ContentAtom + ";type=entry"},
			{Rel: "edit-media", Href: iris.EMIRI},
			{Rel: "http://purl.org/net/sword/terms/add", Href: iris.SEIRI},
			{Rel: "alternate", Href: iris.StateIRI},
			{Rel: "http://purl.org/net/sword/terms/statement", Href: iris.ContIRI},
		},
	}
	return r
}

// StateDocument reports a deposit's lifecycle state.
type StateDocument struct {
	XMLName      xml.Name `xml:"atom:entry"`
	XmlnsAtom    string   `xml:"xmlns:atom,attr"`
	XmlnsSwh     string   `xml:"xmlns:swh,attr"`
	DepositID    int64    `xml:"swh:deposit_id"`
	Status       string   `xml:"swh:deposit_status"`
	StatusDetail string   `xml:"swh:deposit_status_detail,omitempty"`
	SWHID        string   `xml:"swh:deposit_swh_id,omitempty"`
}

// NewStateDocument builds a state document.
func NewStateDocument(depositID int64, status, detail, swhid string) *StateDocument {
	return &StateDocument{
		XmlnsAtom:    AtomNS,
		XmlnsSwh:     SwhNS,
		DepositID:    depositID,
		Status:       status,
		StatusDetail: detail,
		SWHID:        swhid,
	}
}

// ContentDocument is the summary document served from the content IRI.
type ContentDocument struct {
	XMLName      xml.Name `xml:"atom:entry"`
	XmlnsAtom    string   `xml:"xmlns:atom,attr"`
	XmlnsSwh     string   `xml:"xmlns:swh,attr"`
	DepositID    int64    `xml:"swh:deposit_id"`
	DepositDate  string   `xml:"swh:deposit_date"`
	Status       string   `xml:"swh:deposit_status"`
	StatusDetail string   `xml:"swh:deposit_status_detail,omitempty"`
}

// NewContentDocument builds a content summary document.
func NewContentDocument(depositID int64, date time.Time, status, detail string) *ContentDocument {
	return &ContentDocument{
		XmlnsAtom:    AtomNS,
		XmlnsSwh:     SwhNS,
		DepositID:    depositID,
		DepositDate:  date.UTC().Format(time.RFC3339),
		Status:       status,
		StatusDetail: detail,
	}
}

// Feed is the paginated collection listing.
type Feed struct {
	XMLName   xml.Name    `xml:"atom:feed"`
	XmlnsAtom string      `xml:"xmlns:atom,attr"`
	XmlnsSwh  string      `xml:"xmlns:swh,attr"`
	Title     string      `xml:"atom:title"`
	Count     int         `xml:"swh:count"`
	Entries   []FeedEntry `xml:"atom:entry"`
}

// FeedEntry is one deposit in a collection listing.
type FeedEntry struct {
	DepositID   int64  `xml:"swh:deposit_id"`
	DepositDate string `xml:"swh:deposit_date"`
	Status      string `xml:"swh:deposit_status"`
	ExternalID  string `xml:"swh:external_identifier,omitempty"`
	EditIRI     string `xml:"atom:link,omitempty"`
}

// NewFeed builds an empty collection feed.
func NewFeed(title string, count int) *Feed {
	return &Feed{
		XmlnsAtom: AtomNS,
		XmlnsSwh:  SwhNS,
		Title:     title,
		Count:     count,
	}
}
