package server

import (
	"bytes"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/swordd/depositd/checks"
	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/scheduler"
	"github.com/swordd/depositd/sword"
)

// runChecks validates a deposited deposit and moves it to verified or
// rejected. On success the ingestion task is scheduled (when enabled) and
// its id recorded; the detail of a verified deposit keeps any warnings the
// validators produced.
func (s *RESTServer) runChecks(d *deposit.Deposit) (*deposit.Deposit, *sword.Error) {
	reqs, err := s.DB.Requests(d.ID)
	if err != nil {
		return nil, dberror(err)
	}

	detail := &deposit.Detail{}
	ok := true

	// archive side
	narchives := 0
	for _, req := range reqs {
		if req.Type != deposit.RequestArchive {
			continue
		}
		narchives++
		entry, err := s.checkStoredArchive(req)
		if err != nil {
			return nil, dberror(err)
		}
		if entry != nil {
			ok = false
			detail.Archive = append(detail.Archive, *entry)
		}
	}
	if narchives == 0 {
		ok = false
		detail.Archive = append(detail.Archive, deposit.DetailEntry{
			Summary: "Deposit without archive",
		})
	}

	// metadata side. Every metadata request contributes to one merged
	// entry, so mandatory fields may be spread over several documents.
	merged := &sword.Node{Space: sword.AtomNS, Local: "entry"}
	nmetadata := 0
	for _, req := range reqs {
		if req.Type != deposit.RequestMetadata {
			continue
		}
		root, serr := sword.ParseEntry(bytes.NewReader(req.RawMetadata))
		if serr != nil {
			log.Println("deposit", d.ID, "stored metadata does not parse:", serr)
			continue
		}
		nmetadata++
		merged.Children = append(merged.Children, root.Children...)
	}
	if nmetadata == 0 {
		ok = false
		detail.Metadata = append(detail.Metadata, deposit.DetailEntry{
			Summary: "Missing Atom document",
		})
	} else {
		mok, mdetail := checks.Metadata(merged)
		if !mok {
			ok = false
		}
		if mdetail != nil {
			detail.Metadata = append(detail.Metadata, mdetail.Metadata...)
		}
	}

	// origin side
	client, err := s.DB.Client(d.ClientID)
	if err != nil {
		return nil, dberror(err)
	}
	switch {
	case d.OriginURL == "":
		ok = false
		detail.URL = append(detail.URL, deposit.DetailEntry{
			Summary: "Missing origin url",
		})
	case !strings.HasPrefix(d.OriginURL, strings.TrimRight(client.ProviderURL, "/")+"/"):
		ok = false
		detail.URL = append(detail.URL, deposit.DetailEntry{
			Summary: "Origin url does not match the client provider",
			Fields:  []string{d.OriginURL},
		})
	}

	if detail.Empty() {
		detail = nil
	}
	if !ok {
		updated, err := s.DB.Mutate(d.ID, func(d *deposit.Deposit) error {
			d.Status = deposit.StatusRejected
			d.StatusDetail = detail
			return nil
		})
		if err != nil {
			return nil, dberror(err)
		}
		return updated, nil
	}

	var taskid string
	if s.ChecksEnabled {
		taskid, err = s.Scheduler.Schedule(scheduler.NewLoadTask(d.OriginURL, d.ID))
		if err != nil {
			return nil, dberror(err)
		}
	}
	updated, err := s.DB.Mutate(d.ID, func(d *deposit.Deposit) error {
		d.Status = deposit.StatusVerified
		d.StatusDetail = detail // warnings only at this point
		d.LoadTaskID = taskid
		return nil
	})
	if err != nil {
		return nil, dberror(err)
	}
	return updated, nil
}

// checkStoredArchive copies one stored payload to a scratch file and runs
// the archive validator on it.
func (s *RESTServer) checkStoredArchive(req deposit.Request) (*deposit.DetailEntry, error) {
	f, err := s.payloadTempFile(req)
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	defer f.Close()
	return checks.Archive(req.ArchiveName, f, req.ArchiveSize), nil
}

// payloadTempFile copies a stored payload into a scratch file. The caller
// closes and removes it.
func (s *RESTServer) payloadTempFile(req deposit.Request) (*os.File, error) {
	rc, _, err := s.Storage.Open(req.ArchiveKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	f, err := ioutil.TempFile("", "payload-")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}
