package classifier

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
)

// Thresholds over the accumulated spam score. The three tiers drive the
// delivery decision: spam is stored but not forwarded, quarantine holds
// the message, block also rejects it outright.
const (
	SpamThreshold       = 5.0
	QuarantineThreshold = 7.5
	BlockThreshold      = 10.0
)

const minSecureScore = 70

type classifierService struct{}

func NewClassifierService() interfaces.ClassifierService {
	return &classifierService{}
}

func (s *classifierService) Classify(ctx context.Context, event *dto.MailEvent) *models.Classification {
	span, ctx := opentracing.StartSpanFromContext(ctx, "classifierService.Classify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	spamScore := s.scoreSpam(event)
	threats := s.scanThreats(event)

	securityScore := 100
	for _, threat := range threats {
		securityScore -= threat.Type.Deduction()
	}
	if securityScore < 0 {
		securityScore = 0
	}

	result := &models.Classification{
		SpamScore:     spamScore,
		IsSpam:        spamScore >= SpamThreshold,
		Threats:       threats,
		SecurityScore: securityScore,
	}
	result.IsSecure = securityScore >= minSecureScore && !result.HasCriticalThreat()

	span.LogKV("spam-score", spamScore, "security-score", securityScore, "threats", len(threats))
	return result
}

func QuarantineEligible(spamScore float64) bool {
	return spamScore >= QuarantineThreshold
}

func BlockEligible(spamScore float64) bool {
	return spamScore >= BlockThreshold
}
