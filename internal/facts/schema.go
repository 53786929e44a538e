// Package facts turns segment text into structured, deduplicated Facts.
package facts

import "encoding/json"

// Schema is the strict JSON shape the extraction model must produce for
// each fact. Ids and timestamps are assigned server-side.
var Schema = json.RawMessage(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["content", "category", "confidence"],
  "additionalProperties": false,
  "properties": {
    "content": {
      "type": "string",
      "minLength": 10,
      "maxLength": 2000
    },
    "category": {
      "type": "string",
      "enum": ["event", "admission", "financial", "medical", "communication", "regulatory", "other"]
    },
    "confidence": {
      "type": "number",
      "minimum": 0,
      "maximum": 1
    },
    "entities": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string"}
      }
    },
    "dateReferences": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["verbatim"],
        "additionalProperties": false,
        "properties": {
          "date": {"type": "string"},
          "verbatim": {"type": "string"}
        }
      }
    },
    "sourceSnippet": {
      "type": "string",
      "maxLength": 500
    },
    "page": {
      "type": "integer",
      "minimum": 0
    },
    "bbox": {
      "type": "array",
      "items": {"type": "number"},
      "minItems": 4,
      "maxItems": 4
    }
  }
}`)

// extractedFact is the decoded form of one schema-valid model output.
type extractedFact struct {
	Content        string              `json:"content"`
	Category       string              `json:"category"`
	Confidence     float64             `json:"confidence"`
	Entities       map[string][]string `json:"entities,omitempty"`
	DateReferences []dateRef           `json:"dateReferences,omitempty"`
	SourceSnippet  string              `json:"sourceSnippet,omitempty"`
	Page           int                 `json:"page"`
	BBox           []float64           `json:"bbox,omitempty"`
}

type dateRef struct {
	Date     string `json:"date,omitempty"`
	Verbatim string `json:"verbatim"`
}
