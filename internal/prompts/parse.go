package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseReply decodes a model answer into a [Reply]. It never fails:
// anything that is not an object with a "text" field is coerced, with
// the original content passed through as Text. Params is never nil.
func ParseReply(content string) Reply {
	raw := strings.TrimSpace(content)
	body := stripFences(raw)

	var obj map[string]any
	if strings.HasPrefix(body, "{") && json.Unmarshal([]byte(body), &obj) == nil {
		r := Reply{Params: obj["params"]}
		if c, ok := obj["command"].(string); ok {
			r.Command = strings.TrimSpace(c)
		}
		if t, ok := obj["text"].(string); ok {
			r.Text = t
		} else {
			r.Text = raw
		}
		if r.Params == nil {
			r.Params = map[string]any{}
		}
		return r
	}

	// A JSON string literal is unquoted; everything else is spoken as is.
	var s string
	if strings.HasPrefix(body, `"`) && json.Unmarshal([]byte(body), &s) == nil {
		raw = s
	}
	return Reply{Text: raw, Params: map[string]any{}}
}

// stripFences removes a surrounding markdown code fence, with or without
// a language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParamsString renders reply params the way string-oriented handlers
// expect: strings unchanged, a lone "params" key unwrapped, anything
// else as compact JSON.
func ParamsString(params any) string {
	switch p := params.(type) {
	case nil:
		return ""
	case string:
		return p
	case map[string]any:
		if len(p) == 0 {
			return ""
		}
		if v, ok := p["params"]; ok && len(p) == 1 {
			return fmt.Sprint(v)
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprint(params)
	}
	return string(b)
}
