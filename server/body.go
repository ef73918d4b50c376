package server

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math/rand"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/sword"
	"github.com/swordd/depositd/util"
)

// This file holds the request body handling shared by the create, append,
// and replace operations: streaming archives into the payload store behind
// the integrity gate, and parsing metadata bodies. Bodies are staged first
// and recorded only once everything has been validated, so a refused
// request leaves no request row behind.

// payloadKey names a stored archive payload. The deposit id keeps the key
// grouped, the random part keeps replaced payloads from colliding.
func payloadKey(depositID int64) string {
	return fmt.Sprintf("d%08d-%04x", depositID, rand.Int31n(0x10000))
}

// stageArchive streams an archive body into the payload store and returns
// the request row ready to record. Nothing is kept when any integrity check
// fails: the declared length must match the received length, and the
// declared MD5 must match the computed one.
func (s *RESTServer) stageArchive(d *deposit.Deposit, info *sword.Info, body io.Reader) (*deposit.Request, *sword.Error) {
	if info.Filename == "" {
		return nil, sword.BadRequest("archive uploads need a filename in Content-Disposition")
	}
	if info.ContentLength > s.MaxUploadSize {
		return nil, &sword.Error{
			Kind:    sword.KindMaxUploadSize,
			Summary: fmt.Sprintf("upload size is limited to %d bytes", s.MaxUploadSize),
		}
	}

	key := payloadKey(d.ID)
	w, err := s.Storage.Create(key)
	if err != nil {
		return nil, dberror(err)
	}
	hw := util.NewHashWriter(w)
	_, err = io.Copy(hw, io.LimitReader(body, s.MaxUploadSize+1))
	cerr := w.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		s.Storage.Delete(key)
		log.Println("receiving archive:", err)
		return nil, sword.BadRequest("error reading the request body")
	}
	if hw.Size() > s.MaxUploadSize {
		s.Storage.Delete(key)
		return nil, &sword.Error{
			Kind:    sword.KindMaxUploadSize,
			Summary: fmt.Sprintf("upload size is limited to %d bytes", s.MaxUploadSize),
		}
	}
	if info.ContentLength >= 0 && info.ContentLength != hw.Size() {
		s.Storage.Delete(key)
		return nil, &sword.Error{
			Kind:    sword.KindChecksumMismatch,
			Summary: "wrong length",
			Verbose: fmt.Sprintf("Content-Length said %d bytes, received %d", info.ContentLength, hw.Size()),
		}
	}
	computed, ok := hw.CheckMD5(info.ContentMD5)
	if !ok {
		s.Storage.Delete(key)
		return nil, &sword.Error{
			Kind:    sword.KindChecksumMismatch,
			Summary: "wrong md5 checksum",
		}
	}

	return &deposit.Request{
		DepositID:   d.ID,
		Type:        deposit.RequestArchive,
		Date:        time.Now().UTC(),
		ArchiveName: info.Filename,
		ArchiveKey:  key,
		ArchiveSize: hw.Size(),
		ArchiveMD5:  hex.EncodeToString(computed),
	}, nil
}

// stageAtom reads and parses a metadata body and returns the request row
// ready to record.
func (s *RESTServer) stageAtom(d *deposit.Deposit, body io.Reader) (*deposit.Request, *sword.Error) {
	raw, err := ioutil.ReadAll(io.LimitReader(body, s.MaxUploadSize+1))
	if err != nil {
		return nil, sword.BadRequest("error reading the request body")
	}
	if int64(len(raw)) > s.MaxUploadSize {
		return nil, &sword.Error{
			Kind:    sword.KindMaxUploadSize,
			Summary: fmt.Sprintf("upload size is limited to %d bytes", s.MaxUploadSize),
		}
	}
	root, serr := sword.ParseEntry(bytes.NewReader(raw))
	if serr != nil {
		return nil, serr
	}
	if !root.Is(sword.AtomNS, "entry") {
		return nil, sword.BadRequest("the metadata document root must be an atom:entry")
	}
	return &deposit.Request{
		DepositID:   d.ID,
		Type:        deposit.RequestMetadata,
		Date:        time.Now().UTC(),
		RawMetadata: raw,
	}, nil
}

// commitRequests records the staged request rows. When a row cannot be
// recorded, the rows already recorded are removed again and every staged
// payload deleted, so a failure commits nothing.
func (s *RESTServer) commitRequests(reqs ...*deposit.Request) *sword.Error {
	for i, req := range reqs {
		if err := s.DB.AddRequest(req); err != nil {
			for _, added := range reqs[:i] {
				if derr := s.DB.DeleteRequest(added.ID); derr != nil {
					log.Println("rolling back request", added.ID, ":", derr)
				}
			}
			s.discardStaged(reqs)
			return dberror(err)
		}
	}
	return nil
}

// discardStaged deletes the stored payloads of staged request rows.
func (s *RESTServer) discardStaged(reqs []*deposit.Request) {
	for _, req := range reqs {
		if req.Type == deposit.RequestArchive && req.ArchiveKey != "" {
			s.Storage.Delete(req.ArchiveKey)
		}
	}
}

// receiveArchive stages an archive body and records its request row.
func (s *RESTServer) receiveArchive(d *deposit.Deposit, info *sword.Info, body io.Reader) *sword.Error {
	req, serr := s.stageArchive(d, info, body)
	if serr != nil {
		return serr
	}
	return s.commitRequests(req)
}

// receiveAtom stages a metadata body and records its request row. The raw
// document is returned for callers that forward it on.
func (s *RESTServer) receiveAtom(d *deposit.Deposit, body io.Reader) ([]byte, *sword.Error) {
	req, serr := s.stageAtom(d, body)
	if serr != nil {
		return nil, serr
	}
	if serr := s.commitRequests(req); serr != nil {
		return nil, serr
	}
	return req.RawMetadata, nil
}

// receiveMultipart handles a multipart/* body carrying exactly one archive
// part and one atom entry part. Every part is staged before anything is
// recorded, so a part failing partway through the body leaves no request
// behind.
func (s *RESTServer) receiveMultipart(d *deposit.Deposit, info *sword.Info, r *http.Request) *sword.Error {
	boundary := info.TypeParams["boundary"]
	if boundary == "" {
		return sword.BadRequest("multipart body without a boundary parameter")
	}
	mr := multipart.NewReader(r.Body, boundary)
	var staged []*deposit.Request
	var narchive, natom int
	fail := func(serr *sword.Error) *sword.Error {
		s.discardStaged(staged)
		return serr
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(sword.BadRequest("cannot read multipart body"))
		}
		mediatype, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			return fail(sword.BadRequest("cannot parse the Content-Type of a part"))
		}
		switch {
		case sword.IsAtomPart(mediatype):
			natom++
			req, serr := s.stageAtom(d, part)
			if serr != nil {
				return fail(serr)
			}
			staged = append(staged, req)
		case sword.IsArchivePart(mediatype):
			narchive++
			partinfo := &sword.Info{
				Filename:      part.FileName(),
				ContentLength: -1,
			}
			if md5hex := part.Header.Get("Content-MD5"); md5hex != "" {
				b, err := hex.DecodeString(md5hex)
				if err != nil {
					return fail(sword.BadRequest("part header Content-MD5 is not a hex string"))
				}
				partinfo.ContentMD5 = b
			}
			req, serr := s.stageArchive(d, partinfo, part)
			if serr != nil {
				return fail(serr)
			}
			staged = append(staged, req)
		default:
			return fail(sword.Errorf(sword.KindUnsupportedMediaType,
				fmt.Sprintf("unexpected part of type %q", mediatype)))
		}
	}
	if narchive != 1 || natom != 1 {
		return fail(sword.BadRequest("a multipart deposit carries exactly one archive part and one atom entry part"))
	}
	return s.commitRequests(staged...)
}

// deletePayloads removes the stored payload objects of the given requests.
func (s *RESTServer) deletePayloads(reqs []deposit.Request) {
	for _, req := range reqs {
		if req.Type != deposit.RequestArchive || req.ArchiveKey == "" {
			continue
		}
		if err := s.Storage.Delete(req.ArchiveKey); err != nil {
			log.Println("deleting payload", req.ArchiveKey, ":", err)
		}
	}
}

// requestsOfType returns the deposit's request rows of the given types.
func (s *RESTServer) requestsOfType(depositID int64, types ...deposit.RequestType) ([]deposit.Request, *sword.Error) {
	reqs, err := s.DB.Requests(depositID)
	if err != nil {
		return nil, dberror(err)
	}
	var result []deposit.Request
	for _, req := range reqs {
		for _, typ := range types {
			if req.Type == typ {
				result = append(result, req)
				break
			}
		}
	}
	return result, nil
}

// removeRequests deletes the given request rows and their stored payloads.
// The replace operations call it only after the replacement body has been
// recorded, so a refused replace keeps the previous rows.
func (s *RESTServer) removeRequests(reqs []deposit.Request) *sword.Error {
	for _, req := range reqs {
		if err := s.DB.DeleteRequest(req.ID); err != nil {
			return dberror(err)
		}
	}
	s.deletePayloads(reqs)
	return nil
}

// dropRequests deletes the deposit's request rows of the given type along
// with their stored payloads.
func (s *RESTServer) dropRequests(depositID int64, typ deposit.RequestType) *sword.Error {
	doomed, serr := s.requestsOfType(depositID, typ)
	if serr != nil {
		return serr
	}
	if err := s.DB.DeleteRequestsByType(depositID, typ); err != nil {
		return dberror(err)
	}
	s.deletePayloads(doomed)
	return nil
}

// finalize moves a partial deposit to deposited and stamps the completion
// date. A deposit already out of partial is left alone.
func (s *RESTServer) finalize(d *deposit.Deposit) (*deposit.Deposit, *sword.Error) {
	updated, err := s.DB.Mutate(d.ID, func(d *deposit.Deposit) error {
		if d.Status != deposit.StatusPartial {
			return nil
		}
		d.Status = deposit.StatusDeposited
		d.CompleteDate = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, dberror(err)
	}
	return updated, nil
}

// requireMutable refuses modification of a deposit that has left partial.
func requireMutable(d *deposit.Deposit) *sword.Error {
	if !d.Status.Mutable() {
		return sword.BadRequest(fmt.Sprintf(
			"deposit %d has status %s and can no longer be modified", d.ID, d.Status))
	}
	return nil
}
