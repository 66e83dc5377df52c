package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/faults"
)

// EmailSummary is one search result line.
type EmailSummary struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
	Snippet    string    `json:"snippet"`
}

// Email is a full message.
type Email struct {
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	Attachments []AttachmentMeta  `json:"attachments_meta,omitempty"`
}

type AttachmentMeta struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type OutgoingEmail struct {
	To      string   `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	CC      []string `json:"cc,omitempty"`
	BCC     []string `json:"bcc,omitempty"`
}

// Mailer abstracts the mail collaborator; SMTP/IMAP wire details live
// behind the gateway it targets.
type Mailer interface {
	Search(ctx context.Context, query, folder string, maxResults int) ([]EmailSummary, error)
	Read(ctx context.Context, id, folder string) (Email, error)
	Send(ctx context.Context, msg OutgoingEmail) (receiptID string, err error)
}

// GatewayMailer talks JSON to the configured mail gateway service.
type GatewayMailer struct {
	cfg    config.MailConfig
	client *http.Client
}

func NewGatewayMailer(cfg config.MailConfig, client *http.Client) *GatewayMailer {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &GatewayMailer{cfg: cfg, client: client}
}

func (g *GatewayMailer) Search(ctx context.Context, query, folder string, maxResults int) ([]EmailSummary, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("folder", folder)
	q.Set("max", fmt.Sprint(maxResults))
	var out []EmailSummary
	if err := g.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *GatewayMailer) Read(ctx context.Context, id, folder string) (Email, error) {
	q := url.Values{}
	q.Set("folder", folder)
	var out Email
	err := g.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(id)+"?"+q.Encode(), nil, &out)
	return out, err
}

func (g *GatewayMailer) Send(ctx context.Context, msg OutgoingEmail) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, http.MethodPost, "/send", msg, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (g *GatewayMailer) do(ctx context.Context, method, path string, body, out any) error {
	if strings.TrimSpace(g.cfg.GatewayURL) == "" {
		return faults.New(faults.Config, "mail gateway not configured")
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(g.cfg.GatewayURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return faults.Wrap(faults.Transport, err, "mail gateway")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return faults.Newf(faults.Application, "mail gateway: %s: %s", resp.Status, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SearchEmails tool.
type SearchEmails struct {
	Mailer Mailer
}

func (t *SearchEmails) Name() string { return "search_emails" }

func (t *SearchEmails) Description() string {
	return "Search the user's mailbox and return matching message summaries."
}

func (t *SearchEmails) Schema() map[string]any {
	return objectSchema(map[string]any{
		"query":       map[string]any{"type": "string"},
		"folder":      map[string]any{"type": "string", "description": "Mailbox folder (default INBOX)"},
		"max_results": map[string]any{"type": "integer"},
	}, "query")
}

func (t *SearchEmails) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		Query      string `json:"query"`
		Folder     string `json:"folder"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Output{}, faults.Wrap(faults.Application, err, "invalid arguments")
	}
	if args.Folder == "" {
		args.Folder = "INBOX"
	}
	if args.MaxResults <= 0 {
		args.MaxResults = 10
	}
	results, err := t.Mailer.Search(ctx, args.Query, args.Folder, args.MaxResults)
	if err != nil {
		return Output{}, err
	}
	return Output{Result: results}, nil
}

// ReadEmail tool.
type ReadEmail struct {
	Mailer Mailer
}

func (t *ReadEmail) Name() string { return "read_email" }

func (t *ReadEmail) Description() string {
	return "Read one email by id, returning headers, body, and attachment metadata."
}

func (t *ReadEmail) Schema() map[string]any {
	return objectSchema(map[string]any{
		"email_id": map[string]any{"type": "string"},
		"folder":   map[string]any{"type": "string"},
	}, "email_id")
}

func (t *ReadEmail) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		EmailID string `json:"email_id"`
		Folder  string `json:"folder"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || args.EmailID == "" {
		return Output{}, faults.New(faults.Application, "email_id is required")
	}
	if args.Folder == "" {
		args.Folder = "INBOX"
	}
	email, err := t.Mailer.Read(ctx, args.EmailID, args.Folder)
	if err != nil {
		return Output{}, err
	}
	return Output{Result: email}, nil
}

// SendEmail tool.
type SendEmail struct {
	Mailer Mailer
}

func (t *SendEmail) Name() string { return "send_email" }

func (t *SendEmail) Description() string {
	return "Send an email on the user's behalf."
}

func (t *SendEmail) Schema() map[string]any {
	return objectSchema(map[string]any{
		"to":      map[string]any{"type": "string"},
		"subject": map[string]any{"type": "string"},
		"body":    map[string]any{"type": "string"},
		"cc":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"bcc":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	}, "to", "subject", "body")
}

func (t *SendEmail) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var msg OutgoingEmail
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Output{}, faults.Wrap(faults.Application, err, "invalid arguments")
	}
	if msg.To == "" || msg.Subject == "" {
		return Output{}, faults.New(faults.Application, "to and subject are required")
	}
	receipt, err := t.Mailer.Send(ctx, msg)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Result:        map[string]string{"receipt_id": receipt, "to": msg.To},
		FormattedText: fmt.Sprintf("Email enviado a %s: %s", msg.To, msg.Subject),
	}, nil
}
