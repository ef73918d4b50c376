// Package checks holds the validators run against a complete deposit before
// it is promoted to verified: field level checks on the Atom/CodeMeta
// metadata and format checks on the uploaded archives.
package checks

import (
	"time"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/sword"
)

// the alternations of which at least one member must be present.
var mandatoryAlternations = []struct {
	fields []string
	lookup []func(*sword.Node) bool
}{
	{
		fields: []string{"atom:name", "atom:title", "codemeta:name"},
		lookup: []func(*sword.Node) bool{
			has(sword.AtomNS, "name"),
			has(sword.AtomNS, "title"),
			has(sword.CodeMetaNS, "name"),
		},
	},
	{
		fields: []string{"atom:author", "codemeta:author"},
		lookup: []func(*sword.Node) bool{
			has(sword.AtomNS, "author"),
			has(sword.CodeMetaNS, "author"),
		},
	},
}

// date bearing CodeMeta fields which must parse as ISO-8601 when present.
var dateFields = []string{
	"datePublished",
	"dateCreated",
	"dateModified",
	"embargoDate",
}

func has(space, local string) func(*sword.Node) bool {
	return func(n *sword.Node) bool {
		found := n.Find(space, local)
		return found != nil && (found.Text != "" || len(found.Children) > 0)
	}
}

// Metadata validates a parsed Atom document. It returns whether the
// document is acceptable together with the structured detail: failed
// mandatory alternations and bad dates make the document unacceptable,
// while missing suggested fields only produce a warning entry.
func Metadata(root *sword.Node) (bool, *deposit.Detail) {
	detail := &deposit.Detail{}
	ok := true

	for _, alt := range mandatoryAlternations {
		present := false
		for _, lookup := range alt.lookup {
			if lookup(root) {
				present = true
				break
			}
		}
		if !present {
			ok = false
			detail.Metadata = append(detail.Metadata, deposit.DetailEntry{
				Summary: "Mandatory alternate fields are missing",
				Fields:  alt.fields,
			})
		}
	}

	if root.Find(sword.SwhNS, "metadata-provenance") == nil {
		detail.Metadata = append(detail.Metadata, deposit.DetailEntry{
			Summary: "Suggested fields are missing",
			Fields:  []string{"swh:metadata-provenance"},
		})
	}

	var baddates []string
	for _, field := range dateFields {
		for _, n := range root.FindAll(sword.CodeMetaNS, field) {
			if n.Text == "" {
				continue
			}
			if !validDate(n.Text) {
				baddates = append(baddates, "codemeta:"+field)
			}
		}
	}
	if len(baddates) > 0 {
		ok = false
		detail.Metadata = append(detail.Metadata, deposit.DetailEntry{
			Summary: "Invalid date format",
			Fields:  baddates,
		})
	}

	if detail.Empty() {
		detail = nil
	}
	return ok, detail
}

// validDate accepts ISO-8601 dates with or without a time part.
func validDate(s string) bool {
	for _, layout := range []string{
		"2006-01-02",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01",
		"2006",
	} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
