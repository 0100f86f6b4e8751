package browser

import (
	"encoding/json"
	"strings"

	"github.com/chromedp/cdproto/runtime"
)

// escapeJSString escapes a string for use inside a double quoted JavaScript literal
func escapeJSString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "'", "\\'")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	// Keep "</script>" and friends inert
	s = strings.ReplaceAll(s, "<", "\\x3c")
	return s
}

// storageScript builds an expression reading key from localStorage. Access
// errors (opaque origins, disabled storage) are returned, not thrown.
func storageScript(key string) string {
	return `(() => {
	try {
		const v = localStorage.getItem("` + escapeJSString(key) + `");
		return {found: v !== null, value: v === null ? "" : v};
	} catch (e) {
		return {found: false, value: "", error: String(e)};
	}
})()`
}

// rodStorageScript is storageScript as a function taking the key argument
const rodStorageScript = `(key) => {
	try {
		const v = localStorage.getItem(key);
		return {found: v !== null, value: v === null ? "" : v};
	} catch (e) {
		return {found: false, value: "", error: String(e)};
	}
}`

// consoleText renders console API arguments the way DevTools prints them:
// strings verbatim, primitives as JSON, objects by description.
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case arg.Type == runtime.TypeString && len(arg.Value) > 0:
			var s string
			if err := json.Unmarshal(arg.Value, &s); err == nil {
				parts = append(parts, s)
			} else {
				parts = append(parts, string(arg.Value))
			}
		case arg.UnserializableValue != "":
			parts = append(parts, string(arg.UnserializableValue))
		case arg.Type == runtime.TypeUndefined:
			parts = append(parts, "undefined")
		case arg.Description != "":
			parts = append(parts, arg.Description)
		case len(arg.Value) > 0:
			parts = append(parts, string(arg.Value))
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}
