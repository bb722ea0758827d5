// Package mail entrega e-mails transacionais (hoje apenas recuperação de senha).
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Message é um e-mail HTML pronto para envio.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer envia mensagens para um provedor externo.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// WebhookMailer entrega a mensagem como JSON para um endpoint HTTP do provedor.
type WebhookMailer struct {
	url    string
	from   string
	client *http.Client
}

func NewWebhookMailer(url, from string) *WebhookMailer {
	return &WebhookMailer{
		url:    url,
		from:   from,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *WebhookMailer) Send(ctx context.Context, msg Message) error {
	if m == nil || m.url == "" {
		return errors.New("mail webhook não configurado")
	}
	if msg.From == "" {
		msg.From = m.from
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail webhook respondeu %d", resp.StatusCode)
	}
	return nil
}

// LogMailer apenas registra o envio; usado quando nenhum provedor está configurado.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "mail").Logger()}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail_not_sent_no_provider")
	return nil
}

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
  <body>
    <p>Olá, {{.Name}}.</p>
    <p>Recebemos um pedido para redefinir sua senha. O link abaixo vale por {{.Minutes}} minutos.</p>
    <p><a href="{{.Link}}">Redefinir senha</a></p>
    <p>Se você não fez o pedido, ignore este e-mail.</p>
  </body>
</html>`))

// ResetPasswordMessage monta o e-mail de recuperação.
func ResetPasswordMessage(to, firstName, link string, validity time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := resetTemplate.Execute(&buf, struct {
		Name    string
		Link    string
		Minutes int
	}{firstName, link, int(validity.Minutes())})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Redefinição de senha", HTML: buf.String()}, nil
}
