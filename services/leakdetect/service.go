package leakdetect

import (
	"strings"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/models"
)

// KillSeverityThreshold is the breach severity at or above which an
// eligible alias is killed automatically instead of advised.
const KillSeverityThreshold = 5

// Data classes whose exposure raises severity regardless of breach flags.
var sensitiveDataClasses = []string{
	"passwords", "credit cards", "ssns", "financial information",
}

type leakDetectorService struct{}

func NewLeakDetectorService() interfaces.LeakDetectorService {
	return &leakDetectorService{}
}

// MatchDecoy reports an exact substring occurrence of the alias decoy
// token in the message content. Token space is 128-bit random hex, so a
// match is never accidental.
func (s *leakDetectorService) MatchDecoy(alias *models.Alias, event *dto.MailEvent) bool {
	if !alias.DecoyEnabled() {
		return false
	}

	token := *alias.DecoyToken
	return strings.Contains(event.BodyText, token) || strings.Contains(event.BodyHTML, token)
}

// Severity scores a breach list: 1 point per breach, +2 verified,
// +3 sensitive, +2 when a sensitive data class is exposed, -1 for
// spam-list or fabricated entries. Clamped at 0.
func (s *leakDetectorService) Severity(breaches []interfaces.BreachRecord) int {
	severity := 0
	for _, breach := range breaches {
		severity++
		if breach.IsVerified {
			severity += 2
		}
		if breach.IsSensitive {
			severity += 3
		}
		if exposesSensitiveDataClass(breach.DataClasses) {
			severity += 2
		}
		if breach.IsSpamList || breach.IsFabricated {
			severity--
		}
	}
	if severity < 0 {
		severity = 0
	}
	return severity
}

func (s *leakDetectorService) KillEligible(breaches []interfaces.BreachRecord) bool {
	for _, breach := range breaches {
		if breach.IsVerified && !breach.IsFabricated && !breach.IsRetired {
			return true
		}
	}
	return false
}

func exposesSensitiveDataClass(dataClasses []string) bool {
	for _, dataClass := range dataClasses {
		lower := strings.ToLower(dataClass)
		for _, sensitive := range sensitiveDataClasses {
			if strings.Contains(lower, sensitive) {
				return true
			}
		}
	}
	return false
}
