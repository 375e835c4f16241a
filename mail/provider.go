package mail

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"gopkg.in/gomail.v2"

	"mailroom/config"
)

// ProviderMessage is one per-recipient delivery request.
type ProviderMessage struct {
	FromAddress string
	FromName    string
	To          string
	ReplyTo     string
	Subject     string
	HTML        string
	Text        string
	Headers     map[string]string
	Attachments []string
}

// InboundContent is the result of a side-channel content fetch.
type InboundContent struct {
	Text string
	HTML string
}

// Provider is the transactional-email client the dispatcher fans out to and
// the reconciler enriches from. Constructed once at startup and injected so
// tests can substitute a fake.
type Provider interface {
	// Send delivers to a single recipient and returns the provider message id.
	Send(ctx context.Context, msg *ProviderMessage) (string, error)
	// FetchInbound retrieves the stored content of an inbound email by the
	// provider's event email id.
	FetchInbound(ctx context.Context, emailID string) (*InboundContent, error)
}

// NewProvider builds the configured provider client, or nil when the
// provider is disabled.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.MailProvider {
	case config.ProviderResend:
		return &resendProvider{client: resend.NewClient(cfg.ResendAPIKey)}, nil
	case config.ProviderSMTP:
		return &smtpProvider{
			dialer: gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password),
		}, nil
	case config.ProviderDisabled:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.MailProvider)
	}
}

type resendProvider struct {
	client *resend.Client
}

func (p *resendProvider) Send(ctx context.Context, msg *ProviderMessage) (string, error) {
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", msg.FromName, msg.FromAddress),
		To:      []string{msg.To},
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Headers: msg.Headers,
	}
	for _, a := range msg.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{Path: a})
	}

	sent, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

func (p *resendProvider) FetchInbound(ctx context.Context, emailID string) (*InboundContent, error) {
	email, err := p.client.Emails.GetWithContext(ctx, emailID)
	if err != nil {
		return nil, err
	}
	return &InboundContent{Text: email.Text, HTML: email.Html}, nil
}

type smtpProvider struct {
	dialer *gomail.Dialer
}

func (p *smtpProvider) Send(ctx context.Context, msg *ProviderMessage) (string, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(msg.FromAddress, msg.FromName))
	m.SetHeader("To", msg.To)
	m.SetHeader("Reply-To", msg.ReplyTo)
	m.SetHeader("Subject", msg.Subject)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	for _, a := range msg.Attachments {
		m.Attach(a)
	}

	if err := p.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("error sending email: %v", err)
	}
	// SMTP assigns no provider id; the generated message-id header stands in.
	return msg.Headers["Message-Id"], nil
}

func (p *smtpProvider) FetchInbound(ctx context.Context, emailID string) (*InboundContent, error) {
	return nil, fmt.Errorf("smtp provider has no inbound store")
}
