package sword

import (
	"net/http"
	"testing"
)

func mkreq(t *testing.T, headers map[string]string) *http.Request {
	req, err := http.NewRequest("POST", "/hal/", nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestParseInfo(t *testing.T) {
	info, serr := ParseInfo(mkreq(t, map[string]string{
		"Slug":                "ext-1",
		"In-Progress":         "TRUE",
		"Content-MD5":         "9e107d9d372bb6826bd81d3542a419d6",
		"Content-Length":      "12",
		"Content-Disposition": `attachment; filename=payload.zip`,
		"Content-Type":        "application/zip",
	}))
	if serr != nil {
		t.Fatal(serr)
	}
	if info.Slug != "ext-1" {
		t.Errorf("slug %q", info.Slug)
	}
	if !info.InProgress {
		t.Error("In-Progress: TRUE not recognized")
	}
	if len(info.ContentMD5) != 16 {
		t.Errorf("md5 has %d bytes", len(info.ContentMD5))
	}
	if info.ContentLength != 12 {
		t.Errorf("length %d", info.ContentLength)
	}
	if info.Filename != "payload.zip" {
		t.Errorf("filename %q", info.Filename)
	}
	if info.Class() != BodyArchive {
		t.Errorf("class %v, expected BodyArchive", info.Class())
	}
}

func TestParseInfoDefaults(t *testing.T) {
	info, serr := ParseInfo(mkreq(t, nil))
	if serr != nil {
		t.Fatal(serr)
	}
	if info.InProgress {
		t.Error("In-Progress did not default to false")
	}
	if info.ContentLength != -1 {
		t.Errorf("absent Content-Length parsed as %d", info.ContentLength)
	}
	if info.Class() != BodyNone {
		t.Errorf("class %v, expected BodyNone", info.Class())
	}
}

func TestParseInfoRefusals(t *testing.T) {
	var table = []struct {
		headers map[string]string
		kind    Kind
	}{
		{map[string]string{"On-Behalf-Of": "someone else"}, KindMediationNotAllowed},
		{map[string]string{"Packaging": "http://purl.org/net/sword/package/METSDSpaceSIP"}, KindBadRequest},
		{map[string]string{"In-Progress": "maybe"}, KindBadRequest},
		{map[string]string{"Content-MD5": "not hex"}, KindBadRequest},
		{map[string]string{"Content-Length": "twelve"}, KindBadRequest},
	}
	for _, row := range table {
		_, serr := ParseInfo(mkreq(t, row.headers))
		if serr == nil {
			t.Errorf("headers %v accepted", row.headers)
			continue
		}
		if serr.Kind != row.kind {
			t.Errorf("headers %v: kind %v, expected %v", row.headers, serr.Kind, row.kind)
		}
	}
}

func TestBodyClassMultipart(t *testing.T) {
	info, serr := ParseInfo(mkreq(t, map[string]string{
		"Content-Type": `multipart/related; boundary="xyz"`,
	}))
	if serr != nil {
		t.Fatal(serr)
	}
	if info.Class() != BodyMultipart {
		t.Errorf("class %v, expected BodyMultipart", info.Class())
	}
	if info.TypeParams["boundary"] != "xyz" {
		t.Errorf("boundary %q", info.TypeParams["boundary"])
	}
}

func TestErrorMapping(t *testing.T) {
	var table = []struct {
		kind   Kind
		status int
		iri    string
	}{
		{KindBadRequest, 400, ErrorIRIBase + "ErrorBadRequest"},
		{KindParserError, 400, ErrorIRIBase + "ErrorBadRequest"},
		{KindUnauthorized, 401, ""},
		{KindForbidden, 403, ""},
		{KindNotFound, 404, ""},
		{KindMethodNotAllowed, 405, ErrorIRIBase + "MethodNotAllowed"},
		{KindChecksumMismatch, 412, ErrorIRIBase + "ErrorChecksumMismatch"},
		{KindMediationNotAllowed, 412, ErrorIRIBase + "MediationNotAllowed"},
		{KindMaxUploadSize, 413, ErrorIRIBase + "MaxUploadSizeExceeded"},
		{KindUnsupportedMediaType, 415, ErrorIRIBase + "ErrorContent"},
		{KindMaintenance, 503, ""},
	}
	for _, row := range table {
		e := Errorf(row.kind, "x")
		if e.HTTPStatus() != row.status {
			t.Errorf("kind %v: status %d, expected %d", row.kind, e.HTTPStatus(), row.status)
		}
		if e.IRI() != row.iri {
			t.Errorf("kind %v: iri %q, expected %q", row.kind, e.IRI(), row.iri)
		}
	}
}
