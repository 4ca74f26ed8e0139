package ingest

import (
	"bytes"
	"mime/multipart"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/logger"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

func testNormalizer() *ingestService {
	return &ingestService{log: testLogger()}
}

func TestNormalize_Postmark(t *testing.T) {
	// Arrange
	payload := []byte(`{
		"FromFull": {"Email": "sender@example.com", "Name": "Acme Billing"},
		"To": "shop-x7k2@veilmail.io",
		"ReplyTo": "billing@example.com",
		"Subject": "Your invoice",
		"MessageID": "pm-abc-123",
		"TextBody": "Hello there",
		"HtmlBody": "<p>Hello there</p>",
		"Headers": [{"Name": "Return-Path", "Value": "<sender@example.com>"}],
		"Attachments": [{"Name": "invoice.pdf", "ContentType": "application/pdf", "ContentLength": 5120}]
	}`)

	// Act
	event, err := testNormalizer().Normalize(enum.WebhookPostmark, "application/json", payload)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.WebhookPostmark, event.Source)
	assert.Equal(t, "pm-abc-123", event.MessageID)
	assert.Equal(t, "sender@example.com", event.From)
	assert.Equal(t, "Acme Billing", event.FromName)
	assert.Equal(t, "shop-x7k2@veilmail.io", event.To)
	assert.Equal(t, "billing@example.com", event.ReplyTo)
	assert.Equal(t, "Your invoice", event.Subject)
	assert.Equal(t, "Hello there", event.BodyText)
	assert.Equal(t, "<sender@example.com>", event.Header("Return-Path"))
	require.Len(t, event.Attachments, 1)
	assert.Equal(t, "invoice.pdf", event.Attachments[0].Name)
	assert.Equal(t, 5120, event.Attachments[0].Size)
}

func TestNormalize_GenericObject(t *testing.T) {
	// Arrange
	payload := []byte(`{
		"from": "Sender Name <sender@example.com>",
		"to": "shop-x7k2@veilmail.io",
		"subject": "Hi",
		"messageId": "<gen-1@example.com>",
		"text": "plain body"
	}`)

	// Act
	event, err := testNormalizer().Normalize(enum.WebhookGeneric, "application/json", payload)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "sender@example.com", event.From)
	assert.Equal(t, "gen-1@example.com", event.MessageID)
	assert.Equal(t, "plain body", event.BodyText)
}

func TestNormalize_GenericArrayTakesFirst(t *testing.T) {
	// Arrange
	payload := []byte(`[
		{"from": "a@example.com", "to": "shop-x7k2@veilmail.io", "messageId": "m-1", "text": "first"},
		{"from": "b@example.com", "to": "other@veilmail.io", "messageId": "m-2", "text": "second"}
	]`)

	// Act
	event, err := testNormalizer().Normalize(enum.WebhookGeneric, "application/json", payload)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", event.From)
	assert.Equal(t, "first", event.BodyText)
}

func TestNormalize_MIME(t *testing.T) {
	// Arrange
	payload := []byte("From: \"Acme\" <sender@example.com>\r\n" +
		"To: shop-x7k2@veilmail.io\r\n" +
		"Subject: MIME test\r\n" +
		"Message-Id: <mime-1@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"body line\r\n")

	// Act
	event, err := testNormalizer().Normalize(enum.WebhookMIME, "message/rfc822", payload)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "sender@example.com", event.From)
	assert.Equal(t, "Acme", event.FromName)
	assert.Equal(t, "shop-x7k2@veilmail.io", event.To)
	assert.Equal(t, "mime-1@example.com", event.MessageID)
	assert.Contains(t, event.BodyText, "body line")
}

func TestNormalize_MultipartForm(t *testing.T) {
	// Arrange
	raw := "From: \"Acme\" <sender@example.com>\r\n" +
		"To: shop-x7k2@veilmail.io\r\n" +
		"Subject: Form test\r\n" +
		"Message-Id: <form-1@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"form body\r\n"

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("spam_score", "0.1"))
	field, err := writer.CreateFormField("email")
	require.NoError(t, err)
	_, err = field.Write([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	// Act
	event, err := testNormalizer().Normalize(enum.WebhookMIME, writer.FormDataContentType(), buf.Bytes())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "sender@example.com", event.From)
	assert.Equal(t, "shop-x7k2@veilmail.io", event.To)
	assert.Equal(t, "form-1@example.com", event.MessageID)
	assert.Contains(t, event.BodyText, "form body")
}

func TestNormalize_MultipartFormWithoutMessagePart(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("spam_score", "0.1"))
	require.NoError(t, writer.Close())

	// Act
	_, err := testNormalizer().Normalize(enum.WebhookMIME, writer.FormDataContentType(), buf.Bytes())

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayerrors.ErrMalformedPayload))
}

func TestNormalize_MissingMessageIDGetsSynthetic(t *testing.T) {
	// Arrange
	payload := []byte(`{"from": "a@example.com", "to": "shop-x7k2@veilmail.io", "text": "x"}`)

	// Act
	event, err := testNormalizer().Normalize(enum.WebhookGeneric, "application/json", payload)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, event.MessageID)
	assert.NotContains(t, event.MessageID, "<")
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		source  enum.WebhookProvider
		payload string
	}{
		{"invalid json", enum.WebhookPostmark, `{"From": `},
		{"empty body", enum.WebhookGeneric, ``},
		{"empty batch", enum.WebhookGeneric, `[]`},
		{"missing recipient", enum.WebhookGeneric, `{"from": "a@example.com", "text": "x"}`},
		{"missing sender", enum.WebhookGeneric, `{"to": "shop-x7k2@veilmail.io", "text": "x"}`},
		{"unknown provider", enum.WebhookProvider("sendgrid"), `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testNormalizer().Normalize(tt.source, "application/json", []byte(tt.payload))

			require.Error(t, err)
			assert.True(t, errors.Is(err, relayerrors.ErrMalformedPayload))
		})
	}
}
