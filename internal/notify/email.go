// Package notify sends client-facing proposal emails over SMTP.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"os"
	"strings"

	"github.com/vintaratours/proposals-backend/pkg/models"
)

// Config holds SMTP configuration.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending. Dispatch is best-effort everywhere it is
// used: a proposal that fails to email is still correctly persisted.
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service.
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// NewServiceFromEnv builds a Service from SMTP_* environment variables.
func NewServiceFromEnv() *Service {
	return NewService(Config{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     os.Getenv("SMTP_PORT"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
		FromName: os.Getenv("SMTP_FROM_NAME"),
	})
}

// IsConfigured returns true if email is configured.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart email with an HTML body and a plain-text
// fallback.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody, textBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-vintara"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// proposalData feeds the proposal email template.
type proposalData struct {
	BrandName   string
	AccentColor string
	ClientName  string
	Number      string
	Total       string
	ValidUntil  string
	Link        string
	IsCounter   bool
	ReplyEmail  string
	Phone       string
}

// SendProposal emails the client a link to view the proposal, styled with
// the owning brand's display configuration.
func (s *Service) SendProposal(brand models.Brand, p *models.Proposal, link string) error {
	data := proposalData{
		BrandName:   brand.Name,
		AccentColor: brand.AccentColor,
		ClientName:  p.ClientName,
		Number:      p.Number,
		Total:       fmt.Sprintf("$%.2f", p.Total),
		ValidUntil:  p.ValidUntil.Format("January 2, 2006"),
		Link:        link,
		IsCounter:   p.IsCounterProposal,
		ReplyEmail:  brand.ReplyEmail,
		Phone:       brand.Phone,
	}

	subject := fmt.Sprintf("Your proposal %s from %s", p.Number, brand.Name)
	if p.IsCounterProposal {
		subject = fmt.Sprintf("An updated proposal %s from %s", p.Number, brand.Name)
	}

	html, err := renderTemplate(proposalEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render proposal template: %w", err)
	}
	text := fmt.Sprintf(
		"Hi %s,\r\n\r\nYour proposal %s for %s is ready. It is valid until %s.\r\n\r\nView it here: %s\r\n",
		p.ClientName, p.Number, data.Total, data.ValidUntil, link,
	)

	return s.SendHTMLEmail([]string{p.ClientEmail}, subject, html, text)
}

// BuildClientLink returns the shareable client URL for a proposal. The link
// carries the opaque public token, never the numeric id or sequential number.
func BuildClientLink(brand models.Brand, p *models.Proposal) string {
	base := strings.TrimRight(brand.BaseURL, "/")
	return base + "/proposals/" + p.PublicToken.String()
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const proposalEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Your proposal from {{.BrandName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid {{.AccentColor}}; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: {{.AccentColor}}; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .total { font-size: 24px; font-weight: bold; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: {{.AccentColor}}; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.BrandName}}</h1>
    </div>

    <h2>Hi {{.ClientName}},</h2>

    {{if .IsCounter}}
    <p>We've put together a revised proposal for you. Here is the updated offer:</p>
    {{else}}
    <p>Thank you for your interest. Your proposal is ready to review:</p>
    {{end}}

    <p>Proposal <strong>{{.Number}}</strong> &mdash; <span class="total">{{.Total}}</span></p>

    <p>
        <a href="{{.Link}}" class="button">View Your Proposal</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.Link}}</p>

    <p>This proposal is valid until <strong>{{.ValidUntil}}</strong>.</p>

    <div class="footer">
        <p>Questions? Reply to {{.ReplyEmail}}{{if .Phone}} or call {{.Phone}}{{end}}.</p>
    </div>
</body>
</html>`
