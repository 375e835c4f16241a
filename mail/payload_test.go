package mail

import (
	"strings"
	"testing"
)

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		input       string
		wantName    string
		wantAddress string
	}{
		{"Bob Renter <bob@example.com>", "Bob Renter", "bob@example.com"},
		{"bob@example.com", "", "bob@example.com"},
		{"\"Renter, Bob\" <bob@example.com>", "Renter, Bob", "bob@example.com"},
		{"BOB@Example.COM", "", "bob@example.com"},
		{"Broken Name <bob@example.com", "Broken Name", "bob@example.com"},
		{"", "", ""},
	}

	for _, tt := range tests {
		name, address := splitAddress(tt.input)
		if name != tt.wantName || address != tt.wantAddress {
			t.Errorf("splitAddress(%q) = (%q, %q); want (%q, %q)",
				tt.input, name, address, tt.wantName, tt.wantAddress)
		}
	}
}

func TestExtractEnvelope(t *testing.T) {
	data := map[string]interface{}{
		"from":     "Bob Renter <Bob@example.com>",
		"to":       []interface{}{"agent@mail.example.com", "other@example.com"},
		"subject":  "Re: Lease renewal",
		"text":     "Sounds good",
		"email_id": "em_123",
		"headers": map[string]interface{}{
			"Reply-To":    "reply+tok@mail.example.com",
			"In-Reply-To": "<tok@mail.example.com>",
			"References":  "<tok@mail.example.com>",
			"Message-Id":  "<remote@example.com>",
		},
	}

	env := extractEnvelope(data)
	if env.FromAddress != "bob@example.com" || env.FromName != "Bob Renter" {
		t.Errorf("from = %q / %q", env.FromName, env.FromAddress)
	}
	if env.To != "agent@mail.example.com" {
		t.Errorf("to = %q; want first list entry", env.To)
	}
	if env.Subject != "Re: Lease renewal" {
		t.Errorf("subject = %q", env.Subject)
	}
	if env.ReplyTo != "reply+tok@mail.example.com" {
		t.Errorf("reply-to = %q; header access must be case-insensitive", env.ReplyTo)
	}
	if env.InReplyTo != "<tok@mail.example.com>" {
		t.Errorf("in-reply-to = %q", env.InReplyTo)
	}
	if env.MessageID != "<remote@example.com>" {
		t.Errorf("message id = %q", env.MessageID)
	}
	if env.EmailID != "em_123" {
		t.Errorf("email id = %q", env.EmailID)
	}
}

func TestExtractEnvelopeVariants(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
		want func(t *testing.T, env *inboundEnvelope)
	}{
		{
			name: "bare string to",
			data: map[string]interface{}{"to": "agent@mail.example.com"},
			want: func(t *testing.T, env *inboundEnvelope) {
				if env.To != "agent@mail.example.com" {
					t.Errorf("to = %q", env.To)
				}
			},
		},
		{
			name: "body key instead of text",
			data: map[string]interface{}{"body": "hello"},
			want: func(t *testing.T, env *inboundEnvelope) {
				if env.Text != "hello" {
					t.Errorf("text = %q", env.Text)
				}
			},
		},
		{
			name: "nested content",
			data: map[string]interface{}{
				"content": map[string]interface{}{"text": "nested", "html": "<p>nested</p>"},
			},
			want: func(t *testing.T, env *inboundEnvelope) {
				if env.Text != "nested" || env.HTML != "<p>nested</p>" {
					t.Errorf("content = %q / %q", env.Text, env.HTML)
				}
			},
		},
		{
			name: "alternate message id casing",
			data: map[string]interface{}{"messageId": "<x@y>"},
			want: func(t *testing.T, env *inboundEnvelope) {
				if env.MessageID != "<x@y>" {
					t.Errorf("message id = %q", env.MessageID)
				}
			},
		},
		{
			name: "nil payload",
			data: nil,
			want: func(t *testing.T, env *inboundEnvelope) {
				if env.To != "" || env.FromAddress != "" {
					t.Errorf("empty payload should yield empty envelope: %+v", env)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, extractEnvelope(tt.data))
		})
	}
}

func TestBodyTextFallbacks(t *testing.T) {
	tests := []struct {
		name string
		env  inboundEnvelope
		want string
	}{
		{
			name: "plain text preferred",
			env:  inboundEnvelope{Text: "plain", HTML: "<p>rich</p>"},
			want: "plain",
		},
		{
			name: "html stripped to text",
			env:  inboundEnvelope{HTML: "<p>Hello <b>there</b></p>"},
			want: "Hello there",
		},
		{
			name: "placeholder when both empty",
			env:  inboundEnvelope{},
			want: placeholderBody,
		},
		{
			name: "whitespace only counts as empty",
			env:  inboundEnvelope{Text: "   \n"},
			want: placeholderBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.env.bodyText()
			if !strings.Contains(got, tt.want) {
				t.Errorf("bodyText() = %q; want it to contain %q", got, tt.want)
			}
		})
	}
}
