package sword

import (
	"strings"
	"testing"
)

const sampleEntry = `<?xml version="1.0"?>
<entry xmlns="http://www.w3.org/2005/Atom"
       xmlns:codemeta="https://doi.org/10.5063/SCHEMA/CODEMETA-2.0"
       xmlns:swh="https://www.softwareheritage.org/schema/2018/deposit">
    <title>Deposit of hello-world</title>
    <author><name>Ada</name></author>
    <codemeta:name>hello-world</codemeta:name>
    <codemeta:author>
        <codemeta:name>Ada</codemeta:name>
    </codemeta:author>
    <codemeta:datePublished>2021-03-04</codemeta:datePublished>
    <codemeta:keywords>systems</codemeta:keywords>
    <codemeta:keywords>archiving</codemeta:keywords>
    <swh:metadata-provenance>
        <swh:url>https://hal.example.org/deposits</swh:url>
    </swh:metadata-provenance>
</entry>`

func TestParseEntry(t *testing.T) {
	root, serr := ParseEntry(strings.NewReader(sampleEntry))
	if serr != nil {
		t.Fatal(serr)
	}
	if !root.Is(AtomNS, "entry") {
		t.Errorf("root is {%s}%s", root.Space, root.Local)
	}
	if got := root.FindText(AtomNS, "title"); got != "Deposit of hello-world" {
		t.Errorf("title %q", got)
	}
	if got := root.FindText(CodeMetaNS, "name"); got != "hello-world" {
		t.Errorf("codemeta:name %q", got)
	}
	// order preserved for repeated elements
	kw := root.FindAll(CodeMetaNS, "keywords")
	if len(kw) != 2 || kw[0].Text != "systems" || kw[1].Text != "archiving" {
		t.Errorf("keywords %v", kw)
	}
	// nested lookup crosses levels
	if root.Find(SwhNS, "url") == nil {
		t.Error("nested swh:url not found")
	}
	if root.Find(SwhNS, "metadata-provenance") == nil {
		t.Error("swh:metadata-provenance not found")
	}
	if root.Find(AtomNS, "missing") != nil {
		t.Error("found an element that is not there")
	}
}

func TestParseEntryMalformed(t *testing.T) {
	for _, doc := range []string{
		"",
		"<entry>",
		"<a></b>",
		"not xml at all",
	} {
		_, serr := ParseEntry(strings.NewReader(doc))
		if serr == nil {
			t.Errorf("document %q parsed", doc)
			continue
		}
		if serr.Kind != KindParserError {
			t.Errorf("document %q: kind %v, expected %v", doc, serr.Kind, KindParserError)
		}
	}
}
