package server

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/sword"
)

// A MetadataForwarder receives the metadata amendments made on deposits
// that are already archived, so the archive's own metadata storage stays in
// sync with what the client sent us.
type MetadataForwarder interface {
	ForwardMetadata(d *deposit.Deposit, raw []byte) error
}

// HTTPForwarder pushes amendments to a remote metadata endpoint.
type HTTPForwarder struct {
	URL    string // endpoint receiving the atom entries
	Client *http.Client
}

var _ MetadataForwarder = &HTTPForwarder{}

// NewHTTPForwarder returns a forwarder POSTing to endpoint.
func NewHTTPForwarder(endpoint string) *HTTPForwarder {
	return &HTTPForwarder{
		URL:    endpoint,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

// ForwardMetadata POSTs the raw atom entry, tagged with the archived-object
// identifier and the origin it belongs to.
func (f *HTTPForwarder) ForwardMetadata(d *deposit.Deposit, raw []byte) error {
	v := url.Values{}
	v.Set("swhid", d.SWHID)
	v.Set("origin", d.OriginURL)
	req, err := http.NewRequest("POST", f.URL+"?"+v.Encode(), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", sword.ContentAtom+";type=entry")
	resp, err := f.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "forwarding metadata")
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("metadata endpoint answered %s", resp.Status)
	}
	return nil
}
