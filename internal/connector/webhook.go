package connector

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"notifications.app/engine/core/config"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/retry"
	"notifications.app/engine/internal/secrets"
	"notifications.app/engine/internal/store"
)

const userAgent = "notifications-engine/v1"

// WebhookConnector POSTs the event payload to the endpoint URL and keeps the
// endpoint's failure counter. Gateway errors, timeouts and refused
// connections are retried; the counter only moves once retries are spent.
type WebhookConnector struct {
	client          *http.Client
	insecureClient  *http.Client
	secrets         secrets.Store
	endpoints       store.EndpointStore
	retry           *retry.Client
	maxServerErrors int
	logger          *slog.Logger
}

func NewWebhookConnector(cfg config.WebhookConfig, secretStore secrets.Store, endpoints store.EndpointStore, logger *slog.Logger) *WebhookConnector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxServerErrors <= 0 {
		cfg.MaxServerErrors = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opted in per endpoint

	return &WebhookConnector{
		client:          &http.Client{Timeout: cfg.Timeout},
		insecureClient:  &http.Client{Timeout: cfg.Timeout, Transport: insecure},
		secrets:         secretStore,
		endpoints:       endpoints,
		retry:           retry.NewClient("webhook", retry.PolicyFromConfig(cfg.Retry), retry.WithLogger(logger)),
		maxServerErrors: cfg.MaxServerErrors,
		logger:          logger,
	}
}

func (w *WebhookConnector) Name() string { return "webhook" }

func (w *WebhookConnector) Send(ctx context.Context, req Request) (Result, error) {
	props := req.Endpoint.Properties.Webhook
	if props == nil {
		return Result{}, fmt.Errorf("endpoint %s has no webhook properties", req.Endpoint.ID)
	}
	method := props.Method
	if method == "" {
		method = http.MethodPost
	}
	details := map[string]any{"url": props.URL, "method": method}

	headerName, headerValue, err := secrets.Header(ctx, w.secrets, req.Event.OrgID, props.Authentication)
	if err != nil {
		return Result{}, err
	}

	// A malformed URL or method is a configuration error, not a remote failure.
	if _, err := http.NewRequestWithContext(ctx, method, props.URL, http.NoBody); err != nil {
		return Result{}, fmt.Errorf("building webhook request: %w", err)
	}

	client := w.client
	if props.DisableSSLVerification {
		client = w.insecureClient
	}

	// Status of the last attempt; 0 when it never got a response.
	var code int
	_, err = retry.Call(ctx, w.retry, "send", func(ctx context.Context) (struct{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, method, props.URL, bytes.NewReader(req.Event.Payload))
		if err != nil {
			return struct{}{}, fmt.Errorf("building webhook request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("User-Agent", userAgent)
		if headerName != "" {
			httpReq.Header.Set(headerName, headerValue)
		}

		code = 0
		start := time.Now()
		resp, err := client.Do(httpReq)
		webhookDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			webhookResponsesTotal.WithLabelValues("error").Inc()
			return struct{}{}, fmt.Errorf("calling webhook: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
		code = resp.StatusCode
		webhookResponsesTotal.WithLabelValues(responseClass(code)).Inc()
		return struct{}{}, retry.CheckResponse(resp)
	})

	if code != 0 {
		details["code"] = code
	}
	if err == nil {
		if req.Endpoint.ServerErrors > 0 {
			if err := w.endpoints.ResetServerErrors(ctx, req.Endpoint.ID); err != nil {
				w.logger.WarnContext(ctx, "failed to reset server errors", "error", err)
			}
		}
		return Result{Status: model.StatusSuccess, Details: details}, nil
	}

	switch {
	case code == 0:
		details["error_type"] = "connection"
		w.serverError(ctx, req.Endpoint)
	case code >= 500:
		w.serverError(ctx, req.Endpoint)
	case code >= 400:
		if err := w.endpoints.Disable(ctx, req.Endpoint.ID); err != nil {
			w.logger.WarnContext(ctx, "failed to disable endpoint", "error", err)
		} else {
			endpointsDisabledTotal.WithLabelValues("client_error").Inc()
			w.logger.InfoContext(ctx, "endpoint disabled after client error", "status", code)
		}
	}

	return Result{Status: model.StatusFailedExternal, Details: details}, fmt.Errorf("webhook delivery failed: %w", err)
}

func responseClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func (w *WebhookConnector) serverError(ctx context.Context, endpoint model.Endpoint) {
	disabled, err := w.endpoints.IncrementServerErrors(ctx, endpoint.ID, w.maxServerErrors)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to count server error", "error", err)
		return
	}
	if disabled {
		endpointsDisabledTotal.WithLabelValues("server_errors").Inc()
		w.logger.InfoContext(ctx, "endpoint disabled after repeated server errors", "max_server_errors", w.maxServerErrors)
	}
}
