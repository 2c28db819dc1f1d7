package providers

import (
	"encoding/json"
	"strings"
)

// renderTemplate substitutes the {{image_url}} and {{prompt}} placeholders
// in a stored request-body template. Values are JSON-escaped so the result
// stays valid JSON.
func renderTemplate(template json.RawMessage, imageURL, prompt string) (json.RawMessage, error) {
	if len(template) == 0 {
		return nil, nil
	}
	body := string(template)
	body = strings.ReplaceAll(body, "{{image_url}}", jsonEscape(imageURL))
	body = strings.ReplaceAll(body, "{{prompt}}", jsonEscape(prompt))
	if !json.Valid([]byte(body)) {
		return nil, &Error{Msg: "request template renders to invalid JSON", Permanent: true}
	}
	return json.RawMessage(body), nil
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
