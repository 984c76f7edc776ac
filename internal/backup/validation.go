package backup

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cesargomez89/chordbook/internal/constants"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ImportError aggregates every structural problem found in an imported
// snapshot so the caller can show one complete diagnostic.
type ImportError struct {
	Errors []ValidationError
}

func (e *ImportError) Error() string {
	var msgs []string
	for i := range e.Errors {
		msgs = append(msgs, e.Errors[i].Error())
	}
	return "invalid backup snapshot: " + strings.Join(msgs, "; ")
}

// validateSnapshot checks an imported snapshot structurally, collecting
// all errors rather than failing on the first one.
func validateSnapshot(raw []byte) []ValidationError {
	var errs []ValidationError

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return []ValidationError{{Field: "snapshot", Message: "not a JSON object"}}
	}

	errs = append(errs, requireArray(top, "songs")...)
	errs = append(errs, requireArray(top, "progressions")...)
	errs = append(errs, requireString(top, "timestamp")...)
	errs = append(errs, requireString(top, "version")...)

	if rawVersion, ok := top["version"]; ok {
		var version string
		if json.Unmarshal(rawVersion, &version) == nil && version != "" && !knownSnapshotVersion(version) {
			errs = append(errs, ValidationError{Field: "version", Message: fmt.Sprintf("unknown schema version: %s", version)})
		}
	}

	if rawSongs, ok := top["songs"]; ok {
		var songs []map[string]json.RawMessage
		if json.Unmarshal(rawSongs, &songs) == nil {
			for i, song := range songs {
				errs = append(errs, validateSongEntry(i, song)...)
			}
		}
	}

	return errs
}

func validateSongEntry(index int, song map[string]json.RawMessage) []ValidationError {
	var errs []ValidationError
	for _, field := range []string{"id", "name", "createdAt", "updatedAt"} {
		raw, ok := song[field]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("songs[%d].%s", index, field),
				Message: "missing required field",
			})
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("songs[%d].%s", index, field),
				Message: "must be a non-empty string",
			})
		}
	}
	return errs
}

func requireArray(top map[string]json.RawMessage, field string) []ValidationError {
	raw, ok := top[field]
	if !ok {
		return []ValidationError{{Field: field, Message: "missing required field"}}
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return []ValidationError{{Field: field, Message: "must be an array"}}
	}
	return nil
}

func requireString(top map[string]json.RawMessage, field string) []ValidationError {
	raw, ok := top[field]
	if !ok {
		return []ValidationError{{Field: field, Message: "missing required field"}}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return []ValidationError{{Field: field, Message: "must be a string"}}
	}
	return nil
}

func knownSnapshotVersion(version string) bool {
	switch version {
	case constants.SnapshotVersion, "1.0":
		return true
	}
	return false
}
