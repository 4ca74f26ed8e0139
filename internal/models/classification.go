package models

import (
	"github.com/veilmail/relay/internal/enum"
)

// Threat is one security finding produced by the classifier.
type Threat struct {
	Type     enum.ThreatType     `json:"type"`
	Severity enum.ThreatSeverity `json:"severity"`
	Evidence string              `json:"evidence"`
}

// Classification is the composite result of scanning one mail event.
type Classification struct {
	SpamScore     float64  `json:"spamScore"`
	IsSpam        bool     `json:"isSpam"`
	Threats       []Threat `json:"threats,omitempty"`
	SecurityScore int      `json:"securityScore"`
	IsSecure      bool     `json:"isSecure"`
}

func (c *Classification) HasCriticalThreat() bool {
	for _, t := range c.Threats {
		if t.Severity == enum.SeverityCritical {
			return true
		}
	}
	return false
}

// DeliveryDecision is the policy outcome for one inbound message.
type DeliveryDecision string

const (
	DeliveryForward    DeliveryDecision = "forward"
	DeliveryQuarantine DeliveryDecision = "quarantine"
	DeliverySpam       DeliveryDecision = "spam"
	DeliveryBlocked    DeliveryDecision = "blocked"
)
