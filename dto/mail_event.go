package dto

import (
	"github.com/veilmail/relay/internal/enum"
)

// MailEvent is the canonical shape every inbound webhook payload is
// normalized to before it enters the classifier.
type MailEvent struct {
	Source    enum.WebhookProvider `json:"source"`
	MessageID string               `json:"messageId"`

	From     string `json:"from"`
	FromName string `json:"fromName"`
	To       string `json:"to"`
	ReplyTo  string `json:"replyTo,omitempty"`

	Subject  string `json:"subject"`
	BodyText string `json:"bodyText"`
	BodyHTML string `json:"bodyHtml"`

	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []AttachmentMeta  `json:"attachments,omitempty"`
}

// AttachmentMeta carries attachment metadata only; content never enters
// the engine.
type AttachmentMeta struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

func (e *MailEvent) Header(key string) string {
	if e.Headers == nil {
		return ""
	}
	return e.Headers[key]
}
