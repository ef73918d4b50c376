package sword

import (
	"encoding/xml"
	"io"
	"strings"
)

// Canonical namespaces of the documents the server exchanges.
const (
	AtomNS     = "http://www.w3.org/2005/Atom"
	AppNS      = "http://www.w3.org/2007/app"
	SwordNS    = "http://purl.org/net/sword/terms/"
	DCTermsNS  = "http://purl.org/dc/terms/"
	CodeMetaNS = "https://doi.org/10.5063/SCHEMA/CODEMETA-2.0"
	SwhNS      = "https://www.softwareheritage.org/schema/2018/deposit"
)

// A Node is one element of a parsed XML document: a namespaced name, its
// attributes, the concatenated character data directly inside it, and its
// child elements in document order.
type Node struct {
	Space    string
	Local    string
	Attrs    []xml.Attr
	Text     string
	Children []*Node
}

// ParseEntry decodes an XML document into a Node tree. It returns a
// parser-error when the document is not well formed or empty.
func ParseEntry(r io.Reader) (*Node, *Error) {
	dec := xml.NewDecoder(r)
	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &Error{Kind: KindParserError, Summary: "malformed xml document", Verbose: err.Error()}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{
				Space: t.Name.Space,
				Local: t.Name.Local,
				Attrs: append([]xml.Attr(nil), t.Attr...),
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, &Error{Kind: KindParserError, Summary: "malformed xml document", Verbose: "more than one root element"}
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, &Error{Kind: KindParserError, Summary: "empty xml document"}
	}
	root.trim()
	return root, nil
}

func (n *Node) trim() {
	n.Text = strings.TrimSpace(n.Text)
	for _, c := range n.Children {
		c.trim()
	}
}

// Is reports whether the node has the given qualified name.
func (n *Node) Is(space, local string) bool {
	return n.Space == space && n.Local == local
}

// FindAll returns every descendant (at any depth, in document order) with
// the given qualified name.
func (n *Node) FindAll(space, local string) []*Node {
	var result []*Node
	for _, c := range n.Children {
		if c.Is(space, local) {
			result = append(result, c)
		}
		result = append(result, c.FindAll(space, local)...)
	}
	return result
}

// Find returns the first descendant with the given qualified name, or nil.
func (n *Node) Find(space, local string) *Node {
	for _, c := range n.Children {
		if c.Is(space, local) {
			return c
		}
		if found := c.Find(space, local); found != nil {
			return found
		}
	}
	return nil
}

// FindText returns the trimmed text of the first descendant with the given
// qualified name, or "".
func (n *Node) FindText(space, local string) string {
	if found := n.Find(space, local); found != nil {
		return found.Text
	}
	return ""
}

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
