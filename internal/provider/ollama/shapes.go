package ollama

import (
	"bytes"
	"encoding/json"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

// questionShape tags the forms small models use for a question list.
type questionShape int

const (
	shapeArray          questionShape = iota // [{...}, {...}]
	shapeWrappedArray                        // {"questions": [{...}]}
	shapeObjectOfObject                      // {"q1": {...}, "q2": {...}}
	shapeSingle                              // {"question": "...", ...}
	shapeUnknown
)

// normalizeQuestions converts every known shape into the canonical slice.
// Unknown shapes yield an empty slice.
func normalizeQuestions(raw json.RawMessage) ([]provider.InterviewQuestion, questionShape) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []provider.InterviewQuestion{}, shapeUnknown
	}

	switch raw[0] {
	case '[':
		var qs []provider.InterviewQuestion
		if err := json.Unmarshal(raw, &qs); err != nil {
			return []provider.InterviewQuestion{}, shapeUnknown
		}
		return qs, shapeArray

	case '{':
		if q, ok := asQuestion(raw); ok {
			return []provider.InterviewQuestion{q}, shapeSingle
		}
		members, err := objectMembers(raw)
		if err != nil {
			return []provider.InterviewQuestion{}, shapeUnknown
		}
		for _, m := range members {
			if v := bytes.TrimSpace(m); len(v) > 0 && v[0] == '[' {
				var qs []provider.InterviewQuestion
				if err := json.Unmarshal(v, &qs); err == nil {
					return qs, shapeWrappedArray
				}
			}
		}
		if qs := objectQuestions(members); len(qs) > 0 {
			return qs, shapeObjectOfObject
		}
	}
	return []provider.InterviewQuestion{}, shapeUnknown
}

// objectQuestions keeps object members that carry a question field.
func objectQuestions(members []json.RawMessage) []provider.InterviewQuestion {
	var qs []provider.InterviewQuestion
	for _, m := range members {
		if q, ok := asQuestion(m); ok {
			qs = append(qs, q)
		}
	}
	return qs
}

// asQuestion decodes v when it is an object with a question field.
func asQuestion(v json.RawMessage) (provider.InterviewQuestion, bool) {
	var q provider.InterviewQuestion
	v = bytes.TrimSpace(v)
	if len(v) == 0 || v[0] != '{' {
		return q, false
	}
	var marker struct {
		Question *string `json:"question"`
	}
	if err := json.Unmarshal(v, &marker); err != nil || marker.Question == nil {
		return q, false
	}
	if err := json.Unmarshal(v, &q); err != nil {
		return q, false
	}
	return q, true
}

// objectMembers returns the member values of a JSON object in document order.
func objectMembers(raw json.RawMessage) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var members []json.RawMessage
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		members = append(members, v)
	}
	return members, nil
}
