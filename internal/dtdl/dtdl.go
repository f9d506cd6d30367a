// Package dtdl reads the parts of DTDL v2/v3 interface documents that matter
// for model bookkeeping: ids, inheritance and component schemas.
package dtdl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	typeInterface = "Interface"
	typeComponent = "Component"
)

// dtmiPattern accepts DTMIs with or without a version suffix.
var dtmiPattern = regexp.MustCompile(`^dtmi:[A-Za-z](?:[A-Za-z0-9_]*[A-Za-z0-9])?(?::[A-Za-z_](?:[A-Za-z0-9_]*[A-Za-z0-9])?)*(?:;[1-9][0-9]{0,8}(?:\.[1-9][0-9]{0,5})?)?$`)

// Interface is one DTDL interface, top-level or inline.
type Interface struct {
	ID          string
	DisplayName string
	Extends     []string
	Components  []string
	// Inline is set for interfaces declared inside another document.
	Inline bool
	Raw    json.RawMessage
}

// ParseError describes a malformed document.
type ParseError struct {
	Index    int // position of the document in the input, 0 for a single object
	ID       string
	Property string
	Msg      string
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "dtdl document %d", e.Index)
	if e.ID != "" {
		fmt.Fprintf(&sb, " (%s)", e.ID)
	}
	if e.Property != "" {
		fmt.Fprintf(&sb, " property '%s'", e.Property)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	return sb.String()
}

// ValidDTMI reports whether id is a syntactically valid digital twin model identifier.
func ValidDTMI(id string) bool {
	return len(id) <= 2048 && dtmiPattern.MatchString(id)
}

// Documents splits data into its top-level JSON documents. data holds either
// a single object or an array of objects.
func Documents(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Msg: "empty input"}
	}
	if trimmed[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, &ParseError{Msg: fmt.Sprintf("invalid JSON: %v", err)}
		}
		return docs, nil
	}
	if !json.Valid(trimmed) {
		return nil, &ParseError{Msg: "invalid JSON"}
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// Parse reads every interface in data, top-level documents first in input
// order, each followed by the inline interfaces it declares.
func Parse(data []byte) ([]Interface, error) {
	docs, err := Documents(data)
	if err != nil {
		return nil, err
	}
	return ParseDocuments(docs)
}

// ParseDocuments is Parse for documents that were already split.
func ParseDocuments(docs []json.RawMessage) ([]Interface, error) {
	p := &parser{seen: make(map[string]bool)}
	for i, doc := range docs {
		p.index = i
		if _, err := p.parseInterface(doc, false); err != nil {
			return nil, err
		}
	}
	return p.out, nil
}

type parser struct {
	index int
	seen  map[string]bool
	out   []Interface
}

func (p *parser) fail(id, property, format string, args ...any) error {
	return &ParseError{Index: p.index, ID: id, Property: property, Msg: fmt.Sprintf(format, args...)}
}

// parseInterface appends the interface in raw, and any inline interfaces it
// declares, to p.out and returns its id.
func (p *parser) parseInterface(raw json.RawMessage, inline bool) (string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", p.fail("", "", "interface must be a JSON object")
	}

	var id string
	if rawID, ok := obj["@id"]; ok {
		if err := json.Unmarshal(rawID, &id); err != nil {
			return "", p.fail("", "@id", "must be a string")
		}
	}
	if id == "" {
		if inline {
			return "", p.fail("", "@id", "inline interface requires an @id")
		}
		return "", p.fail("", "@id", "missing")
	}
	if !ValidDTMI(id) {
		return "", p.fail(id, "@id", "'%s' is not a valid DTMI", id)
	}

	types, err := stringOrList(obj["@type"])
	if err != nil || !contains(types, typeInterface) {
		return "", p.fail(id, "@type", "must be '%s'", typeInterface)
	}
	if p.seen[id] {
		return "", p.fail(id, "@id", "duplicate model id '%s'", id)
	}
	p.seen[id] = true

	slot := len(p.out)
	p.out = append(p.out, Interface{
		ID:          id,
		DisplayName: displayName(obj["displayName"]),
		Inline:      inline,
		Raw:         raw,
	})

	extends, err := p.references(id, "extends", obj["extends"])
	if err != nil {
		return "", err
	}
	components, err := p.components(id, obj["contents"])
	if err != nil {
		return "", err
	}
	p.out[slot].Extends = extends
	p.out[slot].Components = components
	return id, nil
}

// references reads a property whose value is a DTMI, an inline interface or
// an array mixing both.
func (p *parser) references(owner, property string, raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, p.fail(owner, property, "invalid array")
		}
	} else {
		items = []json.RawMessage{raw}
	}

	var ids []string
	for _, item := range items {
		id, err := p.reference(owner, property, item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *parser) reference(owner, property string, raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.HasPrefix(trimmed, []byte(`"`)):
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return "", p.fail(owner, property, "invalid string")
		}
		if !ValidDTMI(id) {
			return "", p.fail(owner, property, "'%s' is not a valid DTMI", id)
		}
		return id, nil
	case bytes.HasPrefix(trimmed, []byte("{")):
		return p.parseInterface(trimmed, true)
	default:
		return "", p.fail(owner, property, "must be a DTMI or an interface")
	}
}

func (p *parser) components(owner string, raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var contents []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &contents); err != nil {
		return nil, p.fail(owner, "contents", "must be an array of objects")
	}

	var ids []string
	for _, content := range contents {
		types, err := stringOrList(content["@type"])
		if err != nil {
			return nil, p.fail(owner, "contents", "@type must be a string or an array of strings")
		}
		if !contains(types, typeComponent) {
			continue
		}
		schema, ok := content["schema"]
		if !ok {
			return nil, p.fail(owner, "schema", "component without schema")
		}
		id, err := p.reference(owner, "schema", schema)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func stringOrList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// displayName accepts a plain string or a language map, preferring "en".
func displayName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var byLang map[string]string
	if err := json.Unmarshal(raw, &byLang); err != nil {
		return ""
	}
	if en, ok := byLang["en"]; ok {
		return en
	}
	first := ""
	for lang := range byLang {
		if first == "" || lang < first {
			first = lang
		}
	}
	return byLang[first]
}
