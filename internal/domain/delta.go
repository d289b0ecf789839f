package domain

import (
	"encoding/json"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Op is one operation of a rich-text delta.
type Op struct {
	Insert     any            `json:"insert,omitempty"`
	Retain     int            `json:"retain,omitempty"`
	Delete     int            `json:"delete,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Delta is a rich-text document expressed as a list of operations.
type Delta struct {
	Ops []Op `json:"ops"`
}

// TextContent builds record content holding a single plain-text insert.
func TextContent(text string) json.RawMessage {
	b, _ := json.Marshal(Delta{Ops: []Op{{Insert: text}}})
	return b
}

// PlainText flattens record content to text. Content may be a delta or a bare
// string; anything else yields "".
func PlainText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var d Delta
	if err := json.Unmarshal(content, &d); err != nil {
		return ""
	}
	var b strings.Builder
	for _, op := range d.Ops {
		if text, ok := op.Insert.(string); ok {
			b.WriteString(text)
		}
	}
	return b.String()
}

// ContentPolicy is the HTML policy applied to legacy string content.
func ContentPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("img")
	policy.AllowAttrs("src", "alt").OnElements("img")
	policy.AllowElements("math", "span")
	policy.AllowAttrs("class").OnElements("span")
	return policy
}

// SanitizeContent runs HTML string content through policy. Delta content is
// structured text and is returned unchanged, as is anything unparseable.
func SanitizeContent(content json.RawMessage, policy *bluemonday.Policy) json.RawMessage {
	if len(content) == 0 || policy == nil {
		return content
	}
	var s string
	if err := json.Unmarshal(content, &s); err != nil {
		return content
	}
	clean := policy.Sanitize(s)
	if clean == s {
		return content
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return content
	}
	return b
}
