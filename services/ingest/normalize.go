package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/utils"
)

// postmarkPayload is the subset of Postmark's inbound webhook body the
// engine cares about. Attachment content is deliberately dropped; only
// metadata survives normalization.
type postmarkPayload struct {
	From     string `json:"From"`
	FromName string `json:"FromName"`
	FromFull struct {
		Email string `json:"Email"`
		Name  string `json:"Name"`
	} `json:"FromFull"`
	To        string `json:"To"`
	ReplyTo   string `json:"ReplyTo"`
	Subject   string `json:"Subject"`
	MessageID string `json:"MessageID"`
	TextBody  string `json:"TextBody"`
	HTMLBody  string `json:"HtmlBody"`
	Headers   []struct {
		Name  string `json:"Name"`
		Value string `json:"Value"`
	} `json:"Headers"`
	Attachments []struct {
		Name          string `json:"Name"`
		ContentType   string `json:"ContentType"`
		ContentLength int    `json:"ContentLength"`
	} `json:"Attachments"`
}

// genericPayload covers the lowest-common-denominator JSON encoding some
// upstream relays emit: a flat object, optionally wrapped in a one-element
// array.
type genericPayload struct {
	From      string            `json:"from"`
	FromName  string            `json:"fromName"`
	To        string            `json:"to"`
	ReplyTo   string            `json:"replyTo"`
	Subject   string            `json:"subject"`
	MessageID string            `json:"messageId"`
	TextBody  string            `json:"text"`
	HTMLBody  string            `json:"html"`
	Headers   map[string]string `json:"headers"`
}

func (s *ingestService) Normalize(source enum.WebhookProvider, contentType string, payload []byte) (*dto.MailEvent, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errors.Wrap(relayerrors.ErrMalformedPayload, "empty body")
	}

	// SendGrid and Mailgun style inbound hooks post a multipart form with
	// the raw message embedded as one of the fields.
	if mediaType, params, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "multipart/") {
		raw, err := rawMessageFromForm(payload, params["boundary"])
		if err != nil {
			return nil, errors.Wrap(relayerrors.ErrMalformedPayload, err.Error())
		}
		return normalizeMIME(raw)
	}

	switch source {
	case enum.WebhookPostmark:
		return normalizePostmark(payload)
	case enum.WebhookGeneric:
		return normalizeGeneric(payload)
	case enum.WebhookMIME:
		return normalizeMIME(payload)
	default:
		return nil, errors.Wrapf(relayerrors.ErrMalformedPayload, "unknown webhook provider %q", source)
	}
}

func normalizePostmark(payload []byte) (*dto.MailEvent, error) {
	var body postmarkPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errors.Wrap(relayerrors.ErrMalformedPayload, err.Error())
	}

	from := body.FromFull.Email
	if from == "" {
		from = body.From
	}
	fromName := body.FromFull.Name
	if fromName == "" {
		fromName = body.FromName
	}

	event := &dto.MailEvent{
		Source:    enum.WebhookPostmark,
		MessageID: utils.NormalizeMessageID(body.MessageID),
		From:      utils.ExtractAddress(from),
		FromName:  fromName,
		To:        utils.ExtractAddress(body.To),
		ReplyTo:   utils.ExtractAddress(body.ReplyTo),
		Subject:   body.Subject,
		BodyText:  body.TextBody,
		BodyHTML:  body.HTMLBody,
	}
	if len(body.Headers) > 0 {
		event.Headers = make(map[string]string, len(body.Headers))
		for _, h := range body.Headers {
			event.Headers[h.Name] = h.Value
		}
	}
	for _, a := range body.Attachments {
		event.Attachments = append(event.Attachments, dto.AttachmentMeta{
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        a.ContentLength,
		})
	}
	return validated(event)
}

func normalizeGeneric(payload []byte) (*dto.MailEvent, error) {
	trimmed := bytes.TrimSpace(payload)

	// Some relays batch a single message inside a JSON array.
	if trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, errors.Wrap(relayerrors.ErrMalformedPayload, err.Error())
		}
		if len(batch) == 0 {
			return nil, errors.Wrap(relayerrors.ErrMalformedPayload, "empty batch")
		}
		trimmed = batch[0]
	}

	var body genericPayload
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return nil, errors.Wrap(relayerrors.ErrMalformedPayload, err.Error())
	}

	event := &dto.MailEvent{
		Source:    enum.WebhookGeneric,
		MessageID: utils.NormalizeMessageID(body.MessageID),
		From:      utils.ExtractAddress(body.From),
		FromName:  body.FromName,
		To:        utils.ExtractAddress(body.To),
		ReplyTo:   utils.ExtractAddress(body.ReplyTo),
		Subject:   body.Subject,
		BodyText:  body.TextBody,
		BodyHTML:  body.HTMLBody,
		Headers:   body.Headers,
	}
	return validated(event)
}

func normalizeMIME(payload []byte) (*dto.MailEvent, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(relayerrors.ErrMalformedPayload, err.Error())
	}

	from := envelope.GetHeader("From")
	event := &dto.MailEvent{
		Source:    enum.WebhookMIME,
		MessageID: utils.NormalizeMessageID(envelope.GetHeader("Message-Id")),
		From:      utils.ExtractAddress(from),
		FromName:  displayName(from),
		To:        utils.ExtractAddress(envelope.GetHeader("To")),
		ReplyTo:   utils.ExtractAddress(envelope.GetHeader("Reply-To")),
		Subject:   envelope.GetHeader("Subject"),
		BodyText:  envelope.Text,
		BodyHTML:  envelope.HTML,
	}

	keys := envelope.GetHeaderKeys()
	if len(keys) > 0 {
		event.Headers = make(map[string]string, len(keys))
		for _, key := range keys {
			event.Headers[key] = envelope.GetHeader(key)
		}
	}

	for _, attachment := range envelope.Attachments {
		event.Attachments = append(event.Attachments, dto.AttachmentMeta{
			Name:        attachment.FileName,
			ContentType: attachment.ContentType,
			Size:        len(attachment.Content),
		})
	}
	for _, inline := range envelope.Inlines {
		event.Attachments = append(event.Attachments, dto.AttachmentMeta{
			Name:        inline.FileName,
			ContentType: inline.ContentType,
			Size:        len(inline.Content),
		})
	}
	return validated(event)
}

// rawMessageFromForm pulls the raw RFC 5322 message out of a multipart
// form body. SendGrid posts it under "email", Mailgun under "message";
// a part carrying a message/rfc822 content type is accepted as well.
func rawMessageFromForm(payload []byte, boundary string) ([]byte, error) {
	if boundary == "" {
		return nil, errors.New("missing multipart boundary")
	}

	reader := multipart.NewReader(bytes.NewReader(payload), boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		name := part.FormName()
		partType := part.Header.Get("Content-Type")
		if name == "email" || name == "message" || strings.HasPrefix(partType, "message/rfc822") {
			return io.ReadAll(part)
		}
	}
	return nil, errors.New("no raw message part in form")
}

// validated enforces the minimum shape every downstream component relies
// on. A missing message id gets a synthetic one so dedup still works for
// providers that omit it.
func validated(event *dto.MailEvent) (*dto.MailEvent, error) {
	if event.To == "" || !strings.Contains(event.To, "@") {
		return nil, errors.Wrap(relayerrors.ErrMalformedPayload, "missing or invalid recipient")
	}
	if event.From == "" {
		return nil, errors.Wrap(relayerrors.ErrMalformedPayload, "missing sender")
	}
	if event.MessageID == "" {
		event.MessageID = utils.NormalizeMessageID(utils.GenerateMessageID(utils.ExtractDomainFromEmail(event.From)))
	}
	return event, nil
}

// displayName extracts the display-name part of a "Name <addr>" header
// value, empty when the header is a bare address.
func displayName(raw string) string {
	idx := strings.Index(raw, "<")
	if idx <= 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(raw[:idx]), `"`)
}
