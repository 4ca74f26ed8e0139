package leakdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/utils"
)

func TestMatchDecoy(t *testing.T) {
	svc := NewLeakDetectorService()
	token := "abc123"

	tests := []struct {
		name  string
		alias *models.Alias
		event *dto.MailEvent
		match bool
	}{
		{
			name:  "token in text body",
			alias: &models.Alias{DecoyToken: &token},
			event: &dto.MailEvent{BodyText: "your code abc123 is here"},
			match: true,
		},
		{
			name:  "token in html body",
			alias: &models.Alias{DecoyToken: &token},
			event: &dto.MailEvent{BodyHTML: "<p>ref abc123</p>"},
			match: true,
		},
		{
			name:  "token absent",
			alias: &models.Alias{DecoyToken: &token},
			event: &dto.MailEvent{BodyText: "nothing to see"},
			match: false,
		},
		{
			name:  "decoy disabled",
			alias: &models.Alias{},
			event: &dto.MailEvent{BodyText: "abc123"},
			match: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, svc.MatchDecoy(tt.alias, tt.event))
		})
	}
}

func TestSeverity_VerifiedSensitivePasswordBreach(t *testing.T) {
	// Arrange
	svc := NewLeakDetectorService()
	breaches := []interfaces.BreachRecord{
		{IsVerified: true, IsSensitive: true, DataClasses: []string{"Passwords"}},
	}

	// Act
	severity := svc.Severity(breaches)

	// Assert: 1 base + 2 verified + 3 sensitive + 2 data class
	assert.Equal(t, 8, severity)
	assert.True(t, svc.KillEligible(breaches))
	assert.GreaterOrEqual(t, severity, KillSeverityThreshold)
}

func TestSeverity_FabricatedBreachClampsToZero(t *testing.T) {
	// Arrange
	svc := NewLeakDetectorService()
	breaches := []interfaces.BreachRecord{
		{IsVerified: false, IsFabricated: true},
	}

	// Act
	severity := svc.Severity(breaches)

	// Assert: 1 base - 1 fabricated
	assert.Equal(t, 0, severity)
	assert.False(t, svc.KillEligible(breaches))
}

func TestSeverity_EmptyList(t *testing.T) {
	svc := NewLeakDetectorService()
	assert.Equal(t, 0, svc.Severity(nil))
	assert.False(t, svc.KillEligible(nil))
}

func TestKillEligible_RetiredBreachDoesNotQualify(t *testing.T) {
	svc := NewLeakDetectorService()
	breaches := []interfaces.BreachRecord{
		{IsVerified: true, IsRetired: true},
	}
	assert.False(t, svc.KillEligible(breaches))
}

func TestMatchDecoy_GeneratedTokenShape(t *testing.T) {
	token := utils.GenerateDecoyToken()
	assert.Len(t, token, 32)
}
