package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/veilmail/relay/config"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/tracing"
)

const postmarkAPIURL = "https://api.postmarkapp.com/email"

type postmarkProvider struct {
	httpClient  *http.Client
	serverToken string
	apiURL      string
}

func NewPostmarkProvider(cfg *config.ProviderConfig) interfaces.SendProvider {
	return &postmarkProvider{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		serverToken: cfg.PostmarkServerToken,
		apiURL:      postmarkAPIURL,
	}
}

func (p *postmarkProvider) Name() string {
	return "postmark"
}

type postmarkRequest struct {
	From     string           `json:"From"`
	To       string           `json:"To"`
	ReplyTo  string           `json:"ReplyTo,omitempty"`
	Subject  string           `json:"Subject"`
	TextBody string           `json:"TextBody,omitempty"`
	HtmlBody string           `json:"HtmlBody,omitempty"`
	Headers  []postmarkHeader `json:"Headers,omitempty"`
}

type postmarkHeader struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

func (p *postmarkProvider) Send(ctx context.Context, message *interfaces.OutboundMessage) (*interfaces.SendResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "postmarkProvider.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := validateOutbound(message); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	request := postmarkRequest{
		From:     message.From,
		To:       message.To,
		ReplyTo:  message.ReplyTo,
		Subject:  message.Subject,
		TextBody: message.BodyText,
		HtmlBody: message.BodyHTML,
	}
	for name, value := range message.Headers {
		request.Headers = append(request.Headers, postmarkHeader{Name: name, Value: value})
	}

	body, err := json.Marshal(request)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to marshal postmark request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.serverToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "postmark request failed")
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var parsed postmarkResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to decode postmark response")
	}

	if resp.StatusCode != http.StatusOK || parsed.ErrorCode != 0 {
		err := fmt.Errorf("postmark rejected send (code %d): %s", parsed.ErrorCode, parsed.Message)
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &interfaces.SendResult{ProviderMessageID: parsed.MessageID}, nil
}
