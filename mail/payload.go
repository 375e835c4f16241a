package mail

import (
	"net/mail"
	"strings"

	"github.com/jaytaylor/html2text"
)

// Body placeholder when neither text nor HTML content survives extraction.
const placeholderBody = "(no message content)"

// inboundEnvelope is the normalized form of one webhook event payload.
// Every field is optional in the source document; extraction probes each
// defensively and never fails.
type inboundEnvelope struct {
	FromAddress string
	FromName    string
	To          string
	Subject     string
	Text        string
	HTML        string

	ReplyTo    string
	InReplyTo  string
	References string
	MessageID  string
	EmailID    string
}

// extractEnvelope normalizes a loosely structured event payload. Shapes vary
// by provider event version, so every field is probed under its known keys.
func extractEnvelope(data map[string]interface{}) *inboundEnvelope {
	env := &inboundEnvelope{}
	if data == nil {
		return env
	}

	env.FromName, env.FromAddress = splitAddress(stringField(data, "from"))
	env.To = firstAddress(data["to"])
	env.Subject = stringField(data, "subject")
	env.EmailID = stringField(data, "email_id")
	env.MessageID = stringField(data, "message_id", "messageId", "MessageID")

	env.Text = stringField(data, "text", "body")
	env.HTML = stringField(data, "html")
	if content, ok := data["content"].(map[string]interface{}); ok {
		if env.Text == "" {
			env.Text = stringField(content, "text")
		}
		if env.HTML == "" {
			env.HTML = stringField(content, "html")
		}
	}

	headers := headerMap(data["headers"])
	env.ReplyTo = headers["reply-to"]
	env.InReplyTo = headers["in-reply-to"]
	env.References = headers["references"]
	if env.MessageID == "" {
		env.MessageID = headers["message-id"]
	}

	return env
}

// bodyText yields the plain-text body under the fallback ladder: text, then
// HTML stripped to text, then the fixed placeholder.
func (env *inboundEnvelope) bodyText() string {
	if strings.TrimSpace(env.Text) != "" {
		return env.Text
	}
	if strings.TrimSpace(env.HTML) != "" {
		if text, err := html2text.FromString(env.HTML, html2text.Options{TextOnly: true}); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return placeholderBody
}

func (env *inboundEnvelope) hasContent() bool {
	return strings.TrimSpace(env.Text) != "" || strings.TrimSpace(env.HTML) != ""
}

// stringField returns the first non-empty string value under the given keys.
func stringField(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstAddress accepts a bare string or a list and returns the first entry's
// address part.
func firstAddress(v interface{}) string {
	switch t := v.(type) {
	case string:
		_, addr := splitAddress(t)
		return addr
	case []interface{}:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				_, addr := splitAddress(s)
				return addr
			}
		}
	}
	return ""
}

// splitAddress parses "Name <addr>" or a bare address.
func splitAddress(s string) (name, address string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if parsed, err := mail.ParseAddress(s); err == nil {
		return parsed.Name, strings.ToLower(parsed.Address)
	}
	// Not RFC-clean; salvage whatever sits after the angle bracket.
	if open := strings.Index(s, "<"); open >= 0 {
		rest := s[open+1:]
		if close := strings.Index(rest, ">"); close >= 0 {
			rest = rest[:close]
		}
		return strings.TrimSpace(s[:open]), strings.ToLower(strings.TrimSpace(rest))
	}
	return "", strings.ToLower(s)
}

// headerMap lowercases header keys for case-insensitive access.
func headerMap(v interface{}) map[string]string {
	out := map[string]string{}
	raw, ok := v.(map[string]interface{})
	if !ok {
		return out
	}
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[strings.ToLower(k)] = s
		}
	}
	return out
}
