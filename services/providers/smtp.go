package providers

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/veilmail/relay/config"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/internal/utils"
)

type smtpProvider struct {
	host     string
	port     int
	username string
	password string
}

func NewSMTPProvider(cfg *config.ProviderConfig) interfaces.SendProvider {
	return &smtpProvider{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
	}
}

func (p *smtpProvider) Name() string {
	return "smtp"
}

func (p *smtpProvider) Send(ctx context.Context, message *interfaces.OutboundMessage) (*interfaces.SendResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "smtpProvider.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := validateOutbound(message); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	messageID := utils.GenerateMessageID(utils.ExtractDomainFromEmail(message.From))

	buffer, err := p.buildMessage(ctx, message, messageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := p.sendWithSTARTTLS(ctx, message.From, message.To, buffer); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &interfaces.SendResult{ProviderMessageID: utils.NormalizeMessageID(messageID)}, nil
}

func validateOutbound(message *interfaces.OutboundMessage) error {
	switch {
	case message == nil:
		return errors.New("message cannot be nil")
	case message.From == "":
		return errors.New("from address is required")
	case message.To == "":
		return errors.New("recipient is required")
	case message.BodyText == "" && message.BodyHTML == "":
		return errors.New("message must have either text or HTML content")
	default:
		return nil
	}
}

// buildMessage assembles a MIME message. Messages carrying both bodies
// become multipart/alternative so the receiving client picks the richest
// part it can render.
func (p *smtpProvider) buildMessage(ctx context.Context, message *interfaces.OutboundMessage, messageID string) (*bytes.Buffer, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "smtpProvider.buildMessage")
	defer span.Finish()

	buffer := bytes.NewBuffer(nil)

	headers := map[string]string{
		"From":         message.From,
		"To":           message.To,
		"Subject":      message.Subject,
		"Message-ID":   messageID,
		"Date":         utils.Now().Format("Mon, 02 Jan 2006 15:04:05 -0700"),
		"MIME-Version": "1.0",
	}
	if message.ReplyTo != "" {
		headers["Reply-To"] = message.ReplyTo
	}
	for k, v := range message.Headers {
		headers[k] = v
	}

	if message.BodyHTML != "" && message.BodyText != "" {
		writer := multipart.NewWriter(buffer)
		headers["Content-Type"] = "multipart/alternative; boundary=" + writer.Boundary()
		writeHeaders(headers, buffer)

		if err := addPart(writer, "text/plain; charset=UTF-8", message.BodyText); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if err := addPart(writer, "text/html; charset=UTF-8", message.BodyHTML); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}

		if err := writer.Close(); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return buffer, nil
	}

	body := message.BodyText
	headers["Content-Type"] = "text/plain; charset=UTF-8"
	if message.BodyHTML != "" {
		body = message.BodyHTML
		headers["Content-Type"] = "text/html; charset=UTF-8"
	}
	writeHeaders(headers, buffer)
	_, err := buffer.WriteString(body)
	return buffer, err
}

func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}

func addPart(writer *multipart.Writer, contentType, content string) error {
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err = part.Write([]byte(content)); err != nil {
		return fmt.Errorf("failed to write %s content: %w", contentType, err)
	}
	return nil
}

func (p *smtpProvider) sendWithSTARTTLS(ctx context.Context, from, to string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "smtpProvider.sendWithSTARTTLS")
	defer span.Finish()
	span.LogKV("smtp_server", p.host)
	span.LogKV("smtp_port", p.port)

	addr := fmt.Sprintf("%s:%d", p.host, p.port)
	auth := smtp.PlainAuth("", p.username, p.password, p.host)

	// Connect to the server without TLS first
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: p.host,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		err = fmt.Errorf("failed to start TLS: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	// Authenticate after TLS is established
	if err = client.Auth(auth); err != nil {
		err = fmt.Errorf("SMTP authentication failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = client.Mail(from); err != nil {
		err = fmt.Errorf("SMTP MAIL command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = client.Rcpt(to); err != nil {
		err = fmt.Errorf("SMTP RCPT command failed for %s: %w", to, err)
		tracing.TraceErr(span, err)
		return err
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = fmt.Errorf("SMTP DATA command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	_, err = dataWriter.Write(buffer.Bytes())
	if err != nil {
		err = fmt.Errorf("failed to write email data: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	err = dataWriter.Close()
	if err != nil {
		err = fmt.Errorf("failed to close data writer: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}
