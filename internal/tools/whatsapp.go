package tools

import (
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

// Messenger delivers outbound chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, to, body string) (sid string, err error)
}

// TwilioMessenger sends WhatsApp messages through the Twilio Messages API.
type TwilioMessenger struct {
	cfg    config.WhatsAppConfig
	base   string
	client *http.Client
}

func NewTwilioMessenger(cfg config.WhatsAppConfig, client *http.Client) *TwilioMessenger {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TwilioMessenger{
		cfg:    cfg,
		base:   fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s", cfg.AccountSID),
		client: client,
	}
}

func (m *TwilioMessenger) SendMessage(ctx context.Context, to, body string) (string, error) {
	if m.cfg.AccountSID == "" || m.cfg.AuthToken == "" {
		return "", faults.New(faults.Config, "whatsapp credentials not configured")
	}
	form := url.Values{
		"To":   {ensureWhatsAppPrefix(to)},
		"From": {ensureWhatsAppPrefix(m.cfg.From)},
		"Body": {body},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.base+"/Messages.json", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(m.cfg.AccountSID, m.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", faults.Wrap(faults.Transport, err, "twilio request")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return "", faults.Newf(faults.Application, "twilio: %s: %s", resp.Status, string(b))
	}
	var out struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", faults.Wrap(faults.Transport, err, "decode twilio response")
	}
	return out.SID, nil
}

func ensureWhatsAppPrefix(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// SendWhatsApp tool.
type SendWhatsApp struct {
	Messenger Messenger
}

func (t *SendWhatsApp) Name() string { return "send_whatsapp" }

func (t *SendWhatsApp) Description() string {
	return "Send a WhatsApp message to a contact."
}

func (t *SendWhatsApp) Schema() map[string]any {
	return objectSchema(map[string]any{
		"to":   map[string]any{"type": "string", "description": "Recipient number in E.164 form"},
		"body": map[string]any{"type": "string"},
	}, "to", "body")
}

func (t *SendWhatsApp) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		To   string `json:"to"`
		Body string `json:"body"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || args.To == "" || args.Body == "" {
		return Output{}, faults.New(faults.Application, "to and body are required")
	}
	sid, err := t.Messenger.SendMessage(ctx, args.To, args.Body)
	if err != nil {
		return Output{}, err
	}
	return Output{Result: map[string]string{"message_sid": sid, "to": args.To}}, nil
}
