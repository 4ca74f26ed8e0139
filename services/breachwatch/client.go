package breachwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/veilmail/relay/config"
	"github.com/veilmail/relay/interfaces"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/tracing"
)

const defaultRetryAfter = 10 * time.Second

// client talks to a HIBP-compatible breach database over HTTP. A 404 from
// the breached-account endpoint means the address is clean, not an error.
type client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
	log        logger.Logger
}

func NewClient(cfg *config.BreachWatchConfig, log logger.Logger) interfaces.BreachLookupClient {
	return &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		log:        log,
	}
}

func (c *client) LookupBreaches(ctx context.Context, email string) (*interfaces.BreachLookupResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "breachwatch.LookupBreaches")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	endpoint := fmt.Sprintf("%s/breachedaccount/%s?truncateResponse=false", c.baseURL, url.PathEscape(email))

	status, body, retryAfter, err := c.get(ctx, endpoint)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	switch status {
	case http.StatusNotFound:
		return &interfaces.BreachLookupResult{Kind: interfaces.BreachLookupNotFound}, nil
	case http.StatusTooManyRequests:
		span.LogKV("retry-after", retryAfter.String())
		return &interfaces.BreachLookupResult{
			Kind:       interfaces.BreachLookupRateLimited,
			RetryAfter: retryAfter,
		}, nil
	case http.StatusOK:
		var breaches []interfaces.BreachRecord
		if err := json.Unmarshal(body, &breaches); err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrap(err, "failed to decode breach response")
		}
		span.LogKV("breaches", len(breaches))
		return &interfaces.BreachLookupResult{
			Kind:     interfaces.BreachLookupFound,
			Breaches: breaches,
		}, nil
	default:
		err := errors.Errorf("breach lookup returned status %d", status)
		tracing.TraceErr(span, err)
		return nil, err
	}
}

func (c *client) LookupPastes(ctx context.Context, token string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "breachwatch.LookupPastes")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	endpoint := fmt.Sprintf("%s/pasteaccount/%s", c.baseURL, url.PathEscape(token))

	status, _, retryAfter, err := c.get(ctx, endpoint)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}

	switch status {
	case http.StatusNotFound:
		return false, nil
	case http.StatusOK:
		return true, nil
	case http.StatusTooManyRequests:
		span.LogKV("retry-after", retryAfter.String())
		return false, &relayerrors.RateLimitedError{RetryAfter: retryAfter}
	default:
		err := errors.Errorf("paste lookup returned status %d", status)
		tracing.TraceErr(span, err)
		return false, err
	}
}

func (c *client) get(ctx context.Context, endpoint string) (int, []byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("hibp-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, 0, errors.Wrap(err, "breach database request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, err
	}

	return resp.StatusCode, body, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultRetryAfter
}
