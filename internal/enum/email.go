package enum

type EmailStatus string

const (
	EmailStatusPending     EmailStatus = "pending"
	EmailStatusDelivered   EmailStatus = "delivered"
	EmailStatusFailed      EmailStatus = "failed"
	EmailStatusSpam        EmailStatus = "spam"
	EmailStatusQuarantined EmailStatus = "quarantined"
)

func (t EmailStatus) String() string {
	return string(t)
}

type RelayEventType string

const (
	RelayEventReceived     RelayEventType = "received"
	RelayEventForwarded    RelayEventType = "forwarded"
	RelayEventBlocked      RelayEventType = "blocked"
	RelayEventSpamDetected RelayEventType = "spam_detected"
	RelayEventLeakDetected RelayEventType = "leak_detected"
)

func (t RelayEventType) String() string {
	return string(t)
}

type WebhookProvider string

const (
	WebhookPostmark WebhookProvider = "postmark"
	WebhookGeneric  WebhookProvider = "generic"
	WebhookMIME     WebhookProvider = "mime"
)

func (t WebhookProvider) String() string {
	return string(t)
}
