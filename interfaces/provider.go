package interfaces

import "context"

// OutboundMessage is the provider-neutral send request. Provider-specific
// formatting stays inside the adapter.
type OutboundMessage struct {
	From     string
	To       string
	ReplyTo  string
	Subject  string
	BodyText string
	BodyHTML string
	Headers  map[string]string
}

type SendResult struct {
	ProviderMessageID string
}

type SendProvider interface {
	Name() string
	Send(ctx context.Context, message *OutboundMessage) (*SendResult, error)
}
