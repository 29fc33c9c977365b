// Package fetchxml is the single entry point for parsing Dataverse XML
// documents (view FetchXML and form FormXML). Every document passes the same
// hardening gate — DTDs and entity declarations are rejected outright before
// any tree walk — and is turned into a typed AST rather than walked as raw
// DOM at the call sites.
package fetchxml

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// ErrInsecureXML marks a document rejected by the security gate (DTD or
// entity declaration present). The document is never partially parsed.
var ErrInsecureXML = errors.New("fetchxml: document contains a DTD or entity declaration")

// ParseError wraps a well-formedness failure for a single document. It is
// fatal for that document only, not for the surrounding table build.
type ParseError struct {
	Doc string // short document description, e.g. a view name
	Err error
}

func (e *ParseError) Error() string {
	if e.Doc == "" {
		return fmt.Sprintf("fetchxml: parse failed: %v", e.Err)
	}
	return fmt.Sprintf("fetchxml: parse of %s failed: %v", e.Doc, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FilterType is the boolean combinator of a filter node.
type FilterType string

const (
	FilterAnd FilterType = "and"
	FilterOr  FilterType = "or"
)

// Operator is a FetchXML condition operator.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGe         Operator = "ge"
	OpLt         Operator = "lt"
	OpLe         Operator = "le"
	OpLike       Operator = "like"
	OpNotLike    Operator = "not-like"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not-in"
	OpNull       Operator = "null"
	OpNotNull    Operator = "not-null"
	OpOn         Operator = "on"
	OpOnOrBefore Operator = "on-or-before"
	OpOnOrAfter  Operator = "on-or-after"
	OpLastXDays  Operator = "last-x-days"
	OpNextXDays  Operator = "next-x-days"
	OpToday      Operator = "today"
	OpYesterday  Operator = "yesterday"
	OpThisYear   Operator = "this-year"
)

// Condition is one leaf predicate of a filter tree.
type Condition struct {
	Attribute string
	Operator  Operator
	Value     string
	Values    []string // populated for in / not-in
}

// Filter is one node of the filter tree. Conditions and nested Filters are
// combined with Type.
type Filter struct {
	Type       FilterType
	Conditions []Condition
	Filters    []*Filter
}

// Empty reports whether the filter carries no conditions at any depth.
func (f *Filter) Empty() bool {
	if f == nil {
		return true
	}
	if len(f.Conditions) > 0 {
		return false
	}
	for _, nested := range f.Filters {
		if !nested.Empty() {
			return false
		}
	}
	return true
}

// Document is a parsed FetchXML document.
type Document struct {
	// Entity is the logical name of the queried entity, when present.
	Entity string
	// Attributes lists the requested attribute logical names, when present.
	Attributes []string
	// Filter is the top-level filter tree, or nil when the document has no
	// filter.
	Filter *Filter
}

// Parse validates and parses a FetchXML document. The doc argument names the
// document in errors (typically the view name).
func Parse(raw, doc string) (*Document, error) {
	if err := checkSecure(raw); err != nil {
		return nil, err
	}

	tree := etree.NewDocument()
	if err := tree.ReadFromString(raw); err != nil {
		return nil, &ParseError{Doc: doc, Err: err}
	}
	if err := rejectDirectives(tree); err != nil {
		return nil, err
	}

	root := tree.Root()
	if root == nil {
		return nil, &ParseError{Doc: doc, Err: errors.New("empty document")}
	}

	out := &Document{}
	var entity *etree.Element
	switch root.Tag {
	case "fetch":
		entity = root.SelectElement("entity")
	case "entity":
		entity = root
	case "filter":
		out.Filter = buildFilter(root)
		return out, nil
	default:
		return nil, &ParseError{Doc: doc, Err: fmt.Errorf("unexpected root element <%s>", root.Tag)}
	}

	if entity == nil {
		return nil, &ParseError{Doc: doc, Err: errors.New("no <entity> element")}
	}
	out.Entity = entity.SelectAttrValue("name", "")
	for _, a := range entity.SelectElements("attribute") {
		if name := a.SelectAttrValue("name", ""); name != "" {
			out.Attributes = append(out.Attributes, name)
		}
	}
	if f := entity.SelectElement("filter"); f != nil {
		out.Filter = buildFilter(f)
	}
	return out, nil
}

// ExtractFormFields parses a FormXML document and returns the sorted set of
// field logical names bound to form controls.
func ExtractFormFields(raw string) ([]string, error) {
	if err := checkSecure(raw); err != nil {
		return nil, err
	}

	tree := etree.NewDocument()
	if err := tree.ReadFromString(raw); err != nil {
		return nil, &ParseError{Doc: "form", Err: err}
	}
	if err := rejectDirectives(tree); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, control := range tree.FindElements("//control") {
		name := control.SelectAttrValue("datafieldname", "")
		if name != "" {
			seen[strings.ToLower(name)] = struct{}{}
		}
	}

	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields, nil
}

// checkSecure rejects documents containing DTDs or entity declarations
// before any parsing happens.
func checkSecure(raw string) error {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<!entity") {
		return ErrInsecureXML
	}
	return nil
}

// rejectDirectives is a belt-and-braces pass over the token stream: any
// directive that survived the raw scan is still rejected.
func rejectDirectives(doc *etree.Document) error {
	for _, tok := range doc.Child {
		if _, ok := tok.(*etree.Directive); ok {
			return ErrInsecureXML
		}
	}
	return nil
}

func buildFilter(el *etree.Element) *Filter {
	f := &Filter{Type: FilterAnd}
	if t := el.SelectAttrValue("type", ""); strings.EqualFold(t, string(FilterOr)) {
		f.Type = FilterOr
	}

	for _, child := range el.ChildElements() {
		switch child.Tag {
		case "condition":
			cond := Condition{
				Attribute: child.SelectAttrValue("attribute", ""),
				Operator:  Operator(child.SelectAttrValue("operator", "")),
				Value:     child.SelectAttrValue("value", ""),
			}
			for _, v := range child.SelectElements("value") {
				cond.Values = append(cond.Values, v.Text())
			}
			if cond.Attribute != "" && cond.Operator != "" {
				f.Conditions = append(f.Conditions, cond)
			}
		case "filter":
			f.Filters = append(f.Filters, buildFilter(child))
		}
	}
	return f
}
