package repository

import (
	"encoding/json"
	"fmt"
)

// mergeFields applies fields to the top level of the JSON object current.
func mergeFields(current []byte, fields Fields) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &doc); err != nil {
			return nil, fmt.Errorf("merge into non-object record: %w", err)
		}
	}
	for k, v := range fields {
		if v == nil {
			delete(doc, k)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", k, err)
		}
		doc[k] = raw
	}
	return json.Marshal(doc)
}

func updateTransform(fields Fields) Transform {
	return func(current []byte) ([]byte, error) {
		return mergeFields(current, fields)
	}
}
