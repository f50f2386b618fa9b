package domain

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// ExtractionKind tags what the language model handed back.
type ExtractionKind int

const (
	// ExtractionAbsent means no data at all (null, empty, or an empty object)
	ExtractionAbsent ExtractionKind = iota
	// ExtractionMalformed means something arrived but it is not a JSON object
	ExtractionMalformed
	// ExtractionPresent means a JSON object whose fields still need checking
	ExtractionPresent
)

func (k ExtractionKind) String() string {
	switch k {
	case ExtractionAbsent:
		return "absent"
	case ExtractionMalformed:
		return "malformed"
	default:
		return "present"
	}
}

// RawExtraction is the untrusted structured output of the parser stage.
// Every accessor tolerates missing or mistyped fields.
type RawExtraction struct {
	kind    ExtractionKind
	problem string
	doc     gjson.Result
}

// ParseRawExtraction classifies raw JSON bytes.
func ParseRawExtraction(data []byte) RawExtraction {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return RawExtraction{kind: ExtractionAbsent, problem: "no extraction data"}
	}
	if !gjson.ValidBytes(trimmed) {
		return RawExtraction{kind: ExtractionMalformed, problem: "extraction is not valid JSON"}
	}
	doc := gjson.ParseBytes(trimmed)
	if !doc.IsObject() {
		return RawExtraction{kind: ExtractionMalformed, problem: "extraction is not a JSON object"}
	}
	empty := true
	doc.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	if empty {
		return RawExtraction{kind: ExtractionAbsent, problem: "extraction object is empty"}
	}
	return RawExtraction{kind: ExtractionPresent, doc: doc}
}

// Kind reports which variant this extraction is.
func (r RawExtraction) Kind() ExtractionKind { return r.kind }

// Problem describes why an extraction is absent or malformed.
func (r RawExtraction) Problem() string { return r.problem }

// Field returns a top-level field; the result is empty when it is missing.
func (r RawExtraction) Field(name string) gjson.Result {
	if r.kind != ExtractionPresent {
		return gjson.Result{}
	}
	return r.doc.Get(name)
}

// Items returns the items array, or nil when it is missing or not an array.
func (r RawExtraction) Items() []gjson.Result {
	items := r.Field("items")
	if !items.IsArray() {
		return nil
	}
	return items.Array()
}

// ContentHash returns the fingerprint the parser attached, if any.
func (r RawExtraction) ContentHash() string {
	for _, name := range []string{"content_hash", "source_image_hash"} {
		if v := r.Field(name); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// MarshalJSON re-emits the original document, or null.
func (r RawExtraction) MarshalJSON() ([]byte, error) {
	if r.kind != ExtractionPresent {
		return []byte("null"), nil
	}
	return []byte(r.doc.Raw), nil
}

// UnmarshalJSON classifies the incoming document.
func (r *RawExtraction) UnmarshalJSON(data []byte) error {
	*r = ParseRawExtraction(data)
	return nil
}

var _ json.Marshaler = RawExtraction{}
