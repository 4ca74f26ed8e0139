package interfaces

import (
	"context"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/internal/models"
)

type ClassifierService interface {
	// Classify scores a normalized mail event. It never fails on
	// malformed content; anomalies surface as findings in the result.
	Classify(ctx context.Context, event *dto.MailEvent) *models.Classification
}
