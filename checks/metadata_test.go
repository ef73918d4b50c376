package checks

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swordd/depositd/sword"
)

func parse(t *testing.T, doc string) *sword.Node {
	root, serr := sword.ParseEntry(strings.NewReader(doc))
	require.Nil(t, serr)
	return root
}

const goodEntry = `<entry xmlns="http://www.w3.org/2005/Atom"
    xmlns:codemeta="https://doi.org/10.5063/SCHEMA/CODEMETA-2.0"
    xmlns:swh="https://www.softwareheritage.org/schema/2018/deposit">
  <title>hello</title>
  <author><name>Ada</name></author>
  <codemeta:datePublished>2021-03-04</codemeta:datePublished>
  <swh:metadata-provenance><swh:url>https://x.example.org</swh:url></swh:metadata-provenance>
</entry>`

func TestMetadataAccepts(t *testing.T) {
	ok, detail := Metadata(parse(t, goodEntry))
	assert.True(t, ok)
	assert.Nil(t, detail)
}

func TestMetadataMissingProvenanceIsOnlyAWarning(t *testing.T) {
	doc := `<entry xmlns="http://www.w3.org/2005/Atom">
  <title>hello</title>
  <author><name>Ada</name></author>
</entry>`
	ok, detail := Metadata(parse(t, doc))
	assert.True(t, ok)
	require.NotNil(t, detail)
	require.Len(t, detail.Metadata, 1)
	assert.Equal(t, []string{"swh:metadata-provenance"}, detail.Metadata[0].Fields)
}

func TestMetadataMissingMandatory(t *testing.T) {
	// neither name/title nor author: one entry per failed alternation
	doc := `<entry xmlns="http://www.w3.org/2005/Atom">
  <summary>nothing useful</summary>
</entry>`
	ok, detail := Metadata(parse(t, doc))
	assert.False(t, ok)
	require.NotNil(t, detail)
	var mandatory int
	for _, e := range detail.Metadata {
		if e.Summary == "Mandatory alternate fields are missing" {
			mandatory++
		}
	}
	assert.Equal(t, 2, mandatory)
}

func TestMetadataOneAlternationMemberSuffices(t *testing.T) {
	doc := `<entry xmlns="http://www.w3.org/2005/Atom"
    xmlns:codemeta="https://doi.org/10.5063/SCHEMA/CODEMETA-2.0">
  <codemeta:name>hello</codemeta:name>
  <codemeta:author><codemeta:name>Ada</codemeta:name></codemeta:author>
</entry>`
	ok, detail := Metadata(parse(t, doc))
	assert.True(t, ok)
	if detail != nil {
		for _, e := range detail.Metadata {
			assert.NotEqual(t, "Mandatory alternate fields are missing", e.Summary)
		}
	}
}

func TestMetadataBadDates(t *testing.T) {
	doc := `<entry xmlns="http://www.w3.org/2005/Atom"
    xmlns:codemeta="https://doi.org/10.5063/SCHEMA/CODEMETA-2.0">
  <title>hello</title>
  <author><name>Ada</name></author>
  <codemeta:datePublished>last tuesday</codemeta:datePublished>
  <codemeta:dateCreated>2021-03-04</codemeta:dateCreated>
  <codemeta:dateModified>2021/03/04</codemeta:dateModified>
</entry>`
	ok, detail := Metadata(parse(t, doc))
	assert.False(t, ok)
	require.NotNil(t, detail)
	var fields []string
	for _, e := range detail.Metadata {
		if e.Summary == "Invalid date format" {
			fields = e.Fields
		}
	}
	assert.ElementsMatch(t, []string{"codemeta:datePublished", "codemeta:dateModified"}, fields)
}
