package sword

import (
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// PackagingSimpleZip is the only packaging the server accepts.
const PackagingSimpleZip = "http://purl.org/net/sword/package/SimpleZip"

// Content types accepted for raw archive uploads.
const (
	ContentZip  = "application/zip"
	ContentTar  = "application/x-tar"
	ContentAtom = "application/atom+xml"
)

// BodyClass says which of the three disjoint request body layouts a request
// carries.
type BodyClass int

const (
	BodyNone BodyClass = iota
	BodyAtom
	BodyArchive
	BodyMultipart
)

// Info holds the normalized protocol headers of one request.
type Info struct {
	Slug          string // client external identifier, advisory
	InProgress    bool   // defaults to false
	ContentMD5    []byte // decoded from hex, nil if absent
	ContentLength int64  // -1 if absent
	Filename      string // from Content-Disposition
	ContentType   string // media type without parameters
	TypeParams    map[string]string
	CheckSWHID    string // X-Check-SWHID, for the done amendment
}

// ParseInfo extracts and normalizes the protocol headers from r. It refuses
// mediation attempts and unknown packagings, per the protocol rules.
func ParseInfo(r *http.Request) (*Info, *Error) {
	info := &Info{ContentLength: -1}

	if obo := strings.TrimSpace(r.Header.Get("On-Behalf-Of")); obo != "" {
		return nil, &Error{
			Kind:    KindMediationNotAllowed,
			Summary: "mediated deposit not allowed",
			Verbose: "this server does not support deposit on behalf of another user",
		}
	}
	if p := r.Header.Get("Packaging"); p != "" && p != PackagingSimpleZip {
		return nil, BadRequest(fmt.Sprintf("unsupported packaging %q, only %s is accepted", p, PackagingSimpleZip))
	}

	info.Slug = strings.TrimSpace(r.Header.Get("Slug"))
	info.CheckSWHID = strings.TrimSpace(r.Header.Get("X-Check-SWHID"))

	switch strings.ToLower(r.Header.Get("In-Progress")) {
	case "", "false":
		info.InProgress = false
	case "true":
		info.InProgress = true
	default:
		return nil, BadRequest("header In-Progress must be true or false")
	}

	if md5hex := r.Header.Get("Content-MD5"); md5hex != "" {
		b, err := hex.DecodeString(md5hex)
		if err != nil {
			return nil, BadRequest("header Content-MD5 is not a hex string")
		}
		info.ContentMD5 = b
	}

	if cl := r.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, BadRequest("header Content-Length is not a valid length")
		}
		info.ContentLength = n
	}

	if cd := r.Header.Get("Content-Disposition"); cd != "" {
		_, params, err := mime.ParseMediaType(cd)
		if err == nil {
			info.Filename = params["filename"]
		}
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediatype, params, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, BadRequest("cannot parse Content-Type header")
		}
		info.ContentType = mediatype
		info.TypeParams = params
	}

	return info, nil
}

// Class reports which body layout the content type selects. An unknown
// content type on a body-carrying request is the caller's problem to refuse
// with KindUnsupportedMediaType.
func (info *Info) Class() BodyClass {
	switch {
	case info.ContentType == "":
		return BodyNone
	case info.ContentType == ContentAtom:
		return BodyAtom
	case info.ContentType == ContentZip || info.ContentType == ContentTar:
		return BodyArchive
	case strings.HasPrefix(info.ContentType, "multipart/"):
		return BodyMultipart
	}
	return BodyNone
}

// IsArchivePart reports whether a multipart part's content type is one of
// the accepted archive types.
func IsArchivePart(mediatype string) bool {
	return mediatype == ContentZip || mediatype == ContentTar
}

// IsAtomPart reports whether a multipart part's content type is an Atom
// entry.
func IsAtomPart(mediatype string) bool {
	return strings.HasPrefix(mediatype, ContentAtom)
}
