package models

import (
	"bytes"
	"encoding/json"
	"sort"
)

// nullKeys returns the top-level keys of a JSON object that were sent as null.
func nullKeys(data []byte) ([]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var keys []string
	for k, v := range raw {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// clearedSet checks requested clears against a kind's columns. nullable maps each
// patchable key to whether the column accepts NULL; unknown keys are ignored.
func clearedSet(fields map[string]string, clear []string, nullable map[string]bool) map[string]bool {
	cleared := make(map[string]bool, len(clear))
	for _, name := range clear {
		allowed, known := nullable[name]
		if !known {
			continue
		}
		if !allowed {
			if _, exists := fields[name]; !exists {
				fields[name] = "may not be null"
			}
			continue
		}
		cleared[name] = true
	}
	return cleared
}
