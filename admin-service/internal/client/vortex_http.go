package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"chunked-loader/shared/tuple"

	"go.uber.org/zap"
)

// ErrUnexpectedStatus — бэкенд ответил не 2xx.
var ErrUnexpectedStatus = errors.New("unexpected status from vortex endpoint")

const maxErrorBody = 512

// HTTPTransport — tuple.Transport поверх обычных POST запросов.
// Push-сообщения по HTTP не приходят: Observe ничего не делает.
type HTTPTransport struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPTransport создает транспорт для endpoint.
func NewHTTPTransport(endpoint string, timeout time.Duration, logger *zap.Logger) (*HTTPTransport, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid vortex HTTP endpoint: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPTransport{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("VortexHTTP"),
	}, nil
}

// Send реализует tuple.Transport.
func (c *HTTPTransport) Send(ctx context.Context, p tuple.Payload) (tuple.Payload, error) {
	log := c.logger.With(zap.String("action", string(p.Action)), zap.String("messageId", p.MessageID))

	body, err := p.Encode()
	if err != nil {
		return tuple.Payload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return tuple.Payload{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("Vortex HTTP request failed", zap.Error(err))
		return tuple.Payload{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tuple.Payload{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := data
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		log.Warn("Vortex endpoint returned non-2xx status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return tuple.Payload{}, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	reply, err := tuple.DecodePayload(data)
	if err != nil {
		log.Error("Failed to decode vortex reply", zap.Error(err))
		return tuple.Payload{}, err
	}
	return reply, nil
}

// Observe реализует tuple.Transport. По HTTP push не поддерживается.
func (c *HTTPTransport) Observe(tuple.Filter, func(tuple.Payload)) func() {
	return func() {}
}
