package forwarder

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/models"
)

type fakeProvider struct {
	sent   []*interfaces.OutboundMessage
	fail   bool
	lastID string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(ctx context.Context, message *interfaces.OutboundMessage) (*interfaces.SendResult, error) {
	if p.fail {
		return nil, errors.New("connection refused")
	}
	p.sent = append(p.sent, message)
	p.lastID = "prov-123"
	return &interfaces.SendResult{ProviderMessageID: p.lastID}, nil
}

type fakeEmailRepo struct {
	interfaces.EmailRepository
	forwardedID string
	forwardedTo string
	failedID    string
	failedError string
}

func (r *fakeEmailRepo) MarkForwarded(ctx context.Context, id, forwardedTo string, forwardedAt time.Time) error {
	r.forwardedID = id
	r.forwardedTo = forwardedTo
	return nil
}

func (r *fakeEmailRepo) UpdateStatus(ctx context.Context, id string, status enum.EmailStatus, errorMessage string) error {
	if status == enum.EmailStatusFailed {
		r.failedID = id
		r.failedError = errorMessage
	}
	return nil
}

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

func testAlias() *models.Alias {
	return &models.Alias{
		ID:        "alias_1",
		LocalPart: "shop-x7k2",
		Domain:    "veilmail.io",
		ForwardTo: "real@example.com",
		Status:    enum.AliasActive,
	}
}

func TestForward_Success(t *testing.T) {
	// Arrange
	provider := &fakeProvider{}
	repo := &fakeEmailRepo{}
	svc := NewForwardingService(provider, repo, 100, testLogger())

	email := &models.EmailMessage{
		ID:          "email_1",
		FromAddress: "sender@merchant.example",
		Subject:     "Your receipt",
		BodyText:    "Thanks for your order",
		BodyHTML:    `<p>Thanks</p><img src="https://t.example/p.gif" width="1" height="1">`,
	}

	// Act
	outcome, err := svc.Forward(context.Background(), testAlias(), email)

	// Assert
	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
	assert.Equal(t, "real@example.com", outcome.ForwardedTo)
	assert.Equal(t, "prov-123", outcome.ProviderMessageID)
	assert.NotNil(t, outcome.ForwardedAt)
	assert.Equal(t, "email_1", repo.forwardedID)

	require.Len(t, provider.sent, 1)
	sent := provider.sent[0]
	assert.Equal(t, "shop-x7k2@veilmail.io", sent.From)
	assert.Equal(t, "real@example.com", sent.To)
	assert.Equal(t, "sender@merchant.example", sent.ReplyTo)
	assert.NotContains(t, sent.BodyHTML, "t.example/p.gif")
	assert.Contains(t, sent.BodyHTML, "shop-x7k2@veilmail.io")
	assert.Contains(t, sent.BodyText, "[Forwarded by VeilMail.")
}

func TestForward_ProviderFailureMarksEmailFailed(t *testing.T) {
	// Arrange
	provider := &fakeProvider{fail: true}
	repo := &fakeEmailRepo{}
	svc := NewForwardingService(provider, repo, 100, testLogger())

	email := &models.EmailMessage{
		ID:          "email_2",
		FromAddress: "sender@merchant.example",
		Subject:     "hi",
		BodyText:    "hello",
	}

	// Act
	outcome, err := svc.Forward(context.Background(), testAlias(), email)

	// Assert: provider failure is an outcome, not an error
	require.NoError(t, err)
	assert.False(t, outcome.Delivered)
	assert.Contains(t, outcome.ErrorMessage, "connection refused")
	assert.Equal(t, "email_2", repo.failedID)
	assert.Contains(t, repo.failedError, "fake:")
}
