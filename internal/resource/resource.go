// Package resource projects management API documents into per-component
// field maps.
package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/rsclarke/msamon/internal/msa"
)

var (
	// ErrUnsupportedResource is returned for resources with no projection.
	ErrUnsupportedResource = errors.New("unsupported resource")

	// ErrSchemaMismatch is returned when a field code has no name.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// Field binds a short code to the XML property it is read from.
type Field struct {
	Code     string
	Property string
}

// Kind describes where a resource's component nodes live and which of their
// properties are projected.
type Kind struct {
	Name       string
	NodePath   string
	IDProperty string
	Mandatory  []Field
	Optional   []Field
}

var kinds = map[string]Kind{
	"disks": {
		Name:       "disks",
		NodePath:   "./OBJECT[@name='drive']",
		IDProperty: "location",
		Mandatory: []Field{
			{Code: CodeHealth, Property: "health-numeric"},
		},
		Optional: []Field{
			{Code: "t", Property: "temperature-numeric"},
			{Code: "ts", Property: "temperature-status-numeric"},
			{Code: "cj", Property: "job-running-numeric"},
			{Code: "poh", Property: "power-on-hours"},
		},
	},
	"fans": {
		Name:       "fans",
		NodePath:   "./OBJECT[@name='fan-details']",
		IDProperty: "durable-id",
		Mandatory: []Field{
			{Code: CodeHealth, Property: "health-numeric"},
		},
		Optional: []Field{
			{Code: "s", Property: "status-numeric"},
			{Code: "sp", Property: "speed"},
		},
	},
}

// Lookup returns the projection for a resource name.
func Lookup(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// Supported returns the names of all projectable resources, sorted.
func Supported() []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Record is one component's projected fields.
type Record struct {
	ComponentID string
	Fields      map[string]string
}

// Health returns the component's health code under either naming.
func (r Record) Health() string {
	if v, ok := r.Fields[CodeHealth]; ok {
		return v
	}
	return r.Fields[fieldNames[CodeHealth]]
}

// Records holds projected components in document order.
type Records []Record

// Project walks doc for the component nodes of resource. Mandatory
// properties missing from a node, or a repeated component id, make the
// document malformed. With human set, codes are expanded to names.
func Project(doc *etree.Document, resource string, human bool) (Records, error) {
	kind, ok := kinds[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedResource, resource)
	}
	if doc == nil || doc.Root() == nil {
		return nil, fmt.Errorf("%w: empty document", msa.ErrMalformedResponse)
	}

	records := Records{}
	seen := make(map[string]struct{})
	for _, node := range doc.Root().FindElements(kind.NodePath) {
		id, ok := property(node, kind.IDProperty)
		if !ok {
			return nil, fmt.Errorf("%w: %s component without %s", msa.ErrMalformedResponse, resource, kind.IDProperty)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate %s component %q", msa.ErrMalformedResponse, resource, id)
		}
		seen[id] = struct{}{}

		fields := make(map[string]string, len(kind.Mandatory)+len(kind.Optional))
		for _, f := range kind.Mandatory {
			v, ok := property(node, f.Property)
			if !ok {
				return nil, fmt.Errorf("%w: %s component %q without %s", msa.ErrMalformedResponse, resource, id, f.Property)
			}
			fields[f.Code] = v
		}
		for _, f := range kind.Optional {
			if v, ok := property(node, f.Property); ok {
				fields[f.Code] = v
			}
		}
		records = append(records, Record{ComponentID: id, Fields: fields})
	}

	if human {
		return Expand(records)
	}
	return records, nil
}

func property(node *etree.Element, name string) (string, bool) {
	p := node.FindElement("./PROPERTY[@name='" + name + "']")
	if p == nil {
		return "", false
	}
	return strings.TrimSpace(p.Text()), true
}

// Expand returns a copy of records with every field code replaced by its
// name. An unknown code is ErrSchemaMismatch.
func Expand(records Records) (Records, error) {
	out := make(Records, 0, len(records))
	for _, r := range records {
		fields := make(map[string]string, len(r.Fields))
		for code, v := range r.Fields {
			name, ok := fieldNames[code]
			if !ok {
				return nil, fmt.Errorf("%w: unknown field code %q on component %q", ErrSchemaMismatch, code, r.ComponentID)
			}
			fields[name] = v
		}
		out = append(out, Record{ComponentID: r.ComponentID, Fields: fields})
	}
	return out, nil
}

// MarshalJSON encodes records as one object keyed by component id, keeping
// document order.
func (rs Records) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range rs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.ComponentID)
		if err != nil {
			return nil, err
		}
		fields := r.Fields
		if fields == nil {
			fields = map[string]string{}
		}
		val, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Format renders records as compact JSON, or indented by indent spaces when
// indent is positive.
func Format(rs Records, indent int) ([]byte, error) {
	compact, err := rs.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if indent <= 0 {
		return compact, nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", strings.Repeat(" ", indent)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
