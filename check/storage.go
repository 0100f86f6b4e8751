package check

import (
	"bytes"
	"encoding/json"

	"pagecheck/browser"
)

// StoredValue is the client-side storage entry read back from the page
type StoredValue struct {
	Key   string
	Found bool
	Raw   string
	// Valid reports whether Raw parsed as JSON. A malformed value is still
	// Found; it is reported, not fatal.
	Valid      bool
	ParseError error
	// Unavailable holds why the value could not be read at all
	Unavailable string
}

// parseStored interprets the in-page read. An empty string and values that
// decode to nothing usable (null, false, 0, "", {}, []) count as absent.
func parseStored(key string, item browser.StorageItem, readErr error) StoredValue {
	v := StoredValue{Key: key}
	switch {
	case readErr != nil:
		v.Unavailable = readErr.Error()
		return v
	case item.Error != "":
		v.Unavailable = item.Error
		return v
	case !item.Found, item.Value == "":
		return v
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(item.Value), &parsed); err != nil {
		v.Found = true
		v.Raw = item.Value
		v.ParseError = err
		return v
	}
	if empty(parsed) {
		return v
	}

	v.Found = true
	v.Raw = item.Value
	v.Valid = true
	return v
}

func empty(parsed interface{}) bool {
	switch x := parsed.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	case map[string]interface{}:
		return len(x) == 0
	case []interface{}:
		return len(x) == 0
	}
	return false
}

// Pretty renders a valid value as two-space indented JSON. Key order and
// non-ASCII text are kept as stored.
func (v StoredValue) Pretty() string {
	if !v.Valid {
		return v.Raw
	}
	var compact, out bytes.Buffer
	if err := json.Compact(&compact, []byte(v.Raw)); err != nil {
		return v.Raw
	}
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return v.Raw
	}
	return out.String()
}
