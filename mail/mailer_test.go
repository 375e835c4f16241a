package mail

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mailroom/models"
)

func newSendFixture(t *testing.T) (*Mailer, *fakeProvider, *models.Account) {
	t.Helper()
	db := newTestDB(t)
	provider := newFakeProvider()
	m := NewMailer(db, provider, testDomain, newTestLogger())
	account := createAccount(t, db, &models.Account{
		Email:     "jane@agency.example",
		FirstName: "Jane",
		LastName:  "Doe",
	})
	return m, provider, account
}

func TestSendSingleRecipient(t *testing.T) {
	m, provider, account := newSendFixture(t)

	msg, err := m.Send(context.Background(), &SendInput{
		AccountID:  account.ID,
		Recipients: []models.Recipient{{Address: "tenant@example.com", Name: "Tim Tenant"}},
		Subject:    "Lease renewal",
		Body:       "Please review",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if msg.Status != models.MessageStatusSent {
		t.Errorf("status = %q; want sent", msg.Status)
	}
	if msg.ProviderID != "prov-tenant@example.com" {
		t.Errorf("provider id = %q", msg.ProviderID)
	}
	if !strings.HasPrefix(msg.ReplyToAddress, "reply+") || !strings.HasSuffix(msg.ReplyToAddress, "@"+testDomain) {
		t.Errorf("reply routing address = %q", msg.ReplyToAddress)
	}
	if msg.ThreadKey != msg.ReplyToken {
		t.Errorf("fresh conversation should use the token as thread key: %q != %q", msg.ThreadKey, msg.ReplyToken)
	}

	if len(provider.sent) != 1 {
		t.Fatalf("provider calls = %d; want 1", len(provider.sent))
	}
	call := provider.sent[0]
	if call.ReplyTo != msg.ReplyToAddress {
		t.Errorf("provider reply-to = %q; want %q", call.ReplyTo, msg.ReplyToAddress)
	}
	if call.Headers["Message-Id"] != msg.MessageID {
		t.Errorf("Message-Id header = %q; want %q", call.Headers["Message-Id"], msg.MessageID)
	}
	if call.Headers["X-Correlation-Id"] != msg.ReplyToken {
		t.Errorf("X-Correlation-Id header = %q; want %q", call.Headers["X-Correlation-Id"], msg.ReplyToken)
	}
	if call.HTML == "" || !strings.Contains(call.HTML, "<p>Please review</p>") {
		t.Errorf("plain text was not converted to HTML: %q", call.HTML)
	}
}

func TestSendPartialFailure(t *testing.T) {
	m, provider, account := newSendFixture(t)
	provider.failFor["bob@example.com"] = errors.New("mailbox full")

	msg, err := m.Send(context.Background(), &SendInput{
		AccountID: account.ID,
		Recipients: []models.Recipient{
			{Address: "alice@example.com"},
			{Address: "bob@example.com"},
		},
		Subject: "Lease renewal",
		Body:    "Please review",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if msg.Status != models.MessageStatusSent {
		t.Errorf("status = %q; want sent when at least one recipient succeeds", msg.Status)
	}
	if msg.ProviderID != "prov-alice@example.com" {
		t.Errorf("representative provider id = %q; want the successful recipient's", msg.ProviderID)
	}
	if !strings.Contains(msg.ErrorDetail, "bob@example.com") || !strings.Contains(msg.ErrorDetail, "mailbox full") {
		t.Errorf("error detail = %q; want bob's failure reason", msg.ErrorDetail)
	}
	if len(msg.DeliveryResults) != 2 {
		t.Fatalf("delivery results = %d; want 2", len(msg.DeliveryResults))
	}
	if msg.DeliveryResults[1].Error == "" || msg.DeliveryResults[0].Error != "" {
		t.Errorf("per-recipient outcomes mismatched: %+v", msg.DeliveryResults)
	}

	if got := countRows(t, m.db, &models.EmailMessage{}); got != 1 {
		t.Errorf("message rows = %d; want exactly 1", got)
	}
}

func TestSendAllRecipientsFail(t *testing.T) {
	m, provider, account := newSendFixture(t)
	provider.failFor["a@example.com"] = errors.New("bounced")
	provider.failFor["b@example.com"] = errors.New("rejected")

	msg, err := m.Send(context.Background(), &SendInput{
		AccountID: account.ID,
		Recipients: []models.Recipient{
			{Address: "a@example.com"},
			{Address: "b@example.com"},
		},
		Subject: "Notice",
		Body:    "Text",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if msg.Status != models.MessageStatusFailed {
		t.Errorf("status = %q; want failed when every recipient fails", msg.Status)
	}
	for _, want := range []string{"bounced", "rejected"} {
		if !strings.Contains(msg.ErrorDetail, want) {
			t.Errorf("error detail %q missing %q", msg.ErrorDetail, want)
		}
	}
}

func TestSendDisabledProviderMode(t *testing.T) {
	db := newTestDB(t)
	m := NewMailer(db, nil, testDomain, newTestLogger())
	account := createAccount(t, db, &models.Account{Email: "jane@agency.example", FirstName: "Jane", LastName: "Doe"})

	msg, err := m.Send(context.Background(), &SendInput{
		AccountID:  account.ID,
		Recipients: []models.Recipient{{Address: "tenant@example.com"}},
		Subject:    "Hello",
		Body:       "World",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Status != models.MessageStatusSent {
		t.Errorf("status = %q; disabled mode marks sent without delivery", msg.Status)
	}
	if msg.ProviderID != "" {
		t.Errorf("provider id = %q; want empty in disabled mode", msg.ProviderID)
	}
}

func TestSendThreadContinuation(t *testing.T) {
	m, _, account := newSendFixture(t)

	first, err := m.Send(context.Background(), &SendInput{
		AccountID:  account.ID,
		Recipients: []models.Recipient{{Address: "tenant@example.com"}},
		Subject:    "Lease renewal",
		Body:       "Please review",
	})
	if err != nil {
		t.Fatalf("first Send failed: %v", err)
	}

	second, err := m.Send(context.Background(), &SendInput{
		AccountID:  account.ID,
		Recipients: []models.Recipient{{Address: "tenant@example.com"}},
		Subject:    "Re: Lease renewal",
		Body:       "Following up",
		ThreadID:   first.ThreadKey,
	})
	if err != nil {
		t.Fatalf("second Send failed: %v", err)
	}

	if second.ThreadKey != first.ThreadKey {
		t.Errorf("continuation thread key = %q; want %q", second.ThreadKey, first.ThreadKey)
	}
	if second.ReplyToken == first.ReplyToken {
		t.Error("reply token must be unique per send, not per thread")
	}
	if second.ReplyToAddress == first.ReplyToAddress {
		t.Error("reply routing address must be unique per send")
	}
}

func TestSendValidation(t *testing.T) {
	m, _, account := newSendFixture(t)

	tests := []struct {
		name  string
		input *SendInput
	}{
		{
			name:  "no recipients",
			input: &SendInput{AccountID: account.ID, Subject: "s", Body: "b"},
		},
		{
			name: "missing subject",
			input: &SendInput{
				AccountID:  account.ID,
				Recipients: []models.Recipient{{Address: "a@example.com"}},
				Body:       "b",
			},
		},
		{
			name: "missing body",
			input: &SendInput{
				AccountID:  account.ID,
				Recipients: []models.Recipient{{Address: "a@example.com"}},
				Subject:    "s",
			},
		},
		{
			name: "malformed recipient",
			input: &SendInput{
				AccountID:  account.ID,
				Recipients: []models.Recipient{{Address: "not-an-address"}},
				Subject:    "s",
				Body:       "b",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Send(context.Background(), tt.input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v; want ValidationError", err)
			}
			if got := countRows(t, m.db, &models.EmailMessage{}); got != 0 {
				t.Errorf("message rows = %d; validation must reject before persistence", got)
			}
		})
	}
}

func TestRenderHTML(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		bodyHTML string
		want     []string
		wantNot  []string
	}{
		{
			name: "plain text fallback",
			body: "First line\nsecond line\n\nNew paragraph",
			want: []string{"<p>First line<br>", "<p>New paragraph</p>", "<html>"},
		},
		{
			name: "text escaping",
			body: "1 < 2 & 3 > 2",
			want: []string{"1 &lt; 2 &amp; 3 &gt; 2"},
		},
		{
			name:     "fragment gets a shell",
			bodyHTML: "<p>Hello</p>",
			want:     []string{"<!DOCTYPE html>", "<p>Hello</p>"},
		},
		{
			name:     "full document untouched",
			bodyHTML: "<html><body><p>Hi</p></body></html>",
			want:     []string{"<html><body><p>Hi</p></body></html>"},
			wantNot:  []string{"<!DOCTYPE html>\n<html>\n<head>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderHTML(tt.body, tt.bodyHTML)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("renderHTML output missing %q:\n%s", want, got)
				}
			}
			for _, wantNot := range tt.wantNot {
				if strings.Contains(got, wantNot) {
					t.Errorf("renderHTML output should not contain %q:\n%s", wantNot, got)
				}
			}
		})
	}
}
