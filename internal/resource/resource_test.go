package resource

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/rsclarke/msamon/internal/msa"
)

const disksXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<RESPONSE VERSION="L100">
  <OBJECT basetype="drives" name="drive" oid="1">
    <PROPERTY name="durable-id" type="string">disk_01.02</PROPERTY>
    <PROPERTY name="location" type="string">1.2</PROPERTY>
    <PROPERTY name="health-numeric" type="uint32">0</PROPERTY>
    <PROPERTY name="temperature-numeric" type="uint32">31</PROPERTY>
    <PROPERTY name="temperature-status-numeric" type="uint32">1</PROPERTY>
    <PROPERTY name="job-running-numeric" type="uint32">0</PROPERTY>
    <PROPERTY name="power-on-hours" type="uint32">24012</PROPERTY>
  </OBJECT>
  <OBJECT basetype="drives" name="drive" oid="2">
    <PROPERTY name="location" type="string">1.1</PROPERTY>
    <PROPERTY name="health-numeric" type="uint32">2</PROPERTY>
  </OBJECT>
  <OBJECT basetype="status" name="status" oid="3">
    <PROPERTY name="response" type="string">Command completed successfully.</PROPERTY>
    <PROPERTY name="return-code" type="sint32">0</PROPERTY>
  </OBJECT>
</RESPONSE>`

const fansXML = `<RESPONSE VERSION="L100">
  <OBJECT basetype="fan" name="fan-details" oid="1">
    <PROPERTY name="durable-id" type="string">fan_1.1</PROPERTY>
    <PROPERTY name="health-numeric" type="uint32">0</PROPERTY>
    <PROPERTY name="status-numeric" type="uint32">0</PROPERTY>
    <PROPERTY name="speed" type="uint32">4110</PROPERTY>
  </OBJECT>
  <OBJECT basetype="status" name="status" oid="2">
    <PROPERTY name="response" type="string">Command completed successfully.</PROPERTY>
    <PROPERTY name="return-code" type="sint32">0</PROPERTY>
  </OBJECT>
</RESPONSE>`

func parse(t *testing.T, s string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestProjectDisksShortCodes(t *testing.T) {
	records, err := Project(parse(t, disksXML), "disks", false)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}

	want := Records{
		{ComponentID: "1.2", Fields: map[string]string{"h": "0", "t": "31", "ts": "1", "cj": "0", "poh": "24012"}},
		{ComponentID: "1.1", Fields: map[string]string{"h": "2"}},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records mismatch\ngot:  %+v\nwant: %+v", records, want)
	}
}

func TestProjectDisksHumanReadable(t *testing.T) {
	records, err := Project(parse(t, disksXML), "disks", true)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}

	want := Records{
		{ComponentID: "1.2", Fields: map[string]string{
			"health": "0", "temperature": "31", "temperature-status": "1",
			"current-job": "0", "power-on-hours": "24012",
		}},
		{ComponentID: "1.1", Fields: map[string]string{"health": "2"}},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records mismatch\ngot:  %+v\nwant: %+v", records, want)
	}
	if records[1].Health() != "2" {
		t.Errorf("Health() = %q, want 2", records[1].Health())
	}
}

func TestProjectFans(t *testing.T) {
	records, err := Project(parse(t, fansXML), "fans", false)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if len(records) != 1 || records[0].ComponentID != "fan_1.1" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Fields["sp"] != "4110" || records[0].Health() != "0" {
		t.Errorf("unexpected fields: %v", records[0].Fields)
	}
}

func TestProjectNoComponents(t *testing.T) {
	doc := parse(t, `<RESPONSE><OBJECT name="status"><PROPERTY name="return-code">0</PROPERTY></OBJECT></RESPONSE>`)
	records, err := Project(doc, "disks", false)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil records, got %#v", records)
	}
}

func TestProjectErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		resource string
		wantErr  error
	}{
		{
			name:     "unsupported resource",
			doc:      disksXML,
			resource: "vdisks",
			wantErr:  ErrUnsupportedResource,
		},
		{
			name:     "missing health",
			doc:      `<RESPONSE><OBJECT name="drive"><PROPERTY name="location">1.1</PROPERTY></OBJECT></RESPONSE>`,
			resource: "disks",
			wantErr:  msa.ErrMalformedResponse,
		},
		{
			name:     "missing location",
			doc:      `<RESPONSE><OBJECT name="drive"><PROPERTY name="health-numeric">0</PROPERTY></OBJECT></RESPONSE>`,
			resource: "disks",
			wantErr:  msa.ErrMalformedResponse,
		},
		{
			name: "duplicate location",
			doc: `<RESPONSE>
				<OBJECT name="drive"><PROPERTY name="location">1.1</PROPERTY><PROPERTY name="health-numeric">0</PROPERTY></OBJECT>
				<OBJECT name="drive"><PROPERTY name="location">1.1</PROPERTY><PROPERTY name="health-numeric">0</PROPERTY></OBJECT>
			</RESPONSE>`,
			resource: "disks",
			wantErr:  msa.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Project(parse(t, tt.doc), tt.resource, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProjectNilDocument(t *testing.T) {
	if _, err := Project(nil, "disks", false); !errors.Is(err, msa.ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestExpandUnknownCode(t *testing.T) {
	records := Records{{ComponentID: "1.1", Fields: map[string]string{"h": "0", "zz": "1"}}}
	_, err := Expand(records)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestFieldNamesAreUnique(t *testing.T) {
	seen := make(map[string]string)
	for code, name := range fieldNames {
		if other, ok := seen[name]; ok {
			t.Errorf("codes %q and %q both expand to %q", code, other, name)
		}
		seen[name] = code
	}
}

func TestKindCodesHaveNames(t *testing.T) {
	for _, name := range Supported() {
		kind, _ := Lookup(name)
		for _, f := range append(append([]Field{}, kind.Mandatory...), kind.Optional...) {
			if _, ok := FieldName(f.Code); !ok {
				t.Errorf("%s: code %q has no human-readable name", name, f.Code)
			}
		}
	}
}

func TestFormat(t *testing.T) {
	records := Records{
		{ComponentID: "1.2", Fields: map[string]string{"t": "31", "h": "0"}},
		{ComponentID: "1.1", Fields: map[string]string{"h": "2"}},
	}

	compact, err := Format(records, 0)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if want := `{"1.2":{"h":"0","t":"31"},"1.1":{"h":"2"}}`; string(compact) != want {
		t.Errorf("compact = %s, want %s", compact, want)
	}

	pretty, err := Format(records, 4)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if !strings.Contains(string(pretty), "\n    \"1.2\": {\n        \"h\": \"0\"") {
		t.Errorf("unexpected pretty output:\n%s", pretty)
	}
	if strings.Index(string(pretty), "1.2") > strings.Index(string(pretty), "1.1") {
		t.Error("pretty output should keep document order")
	}
}

func TestFormatEmpty(t *testing.T) {
	out, err := Format(Records{}, 2)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if string(out) != "{}" {
		t.Errorf("Format(empty) = %q, want {}", out)
	}
}
