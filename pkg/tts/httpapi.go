package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// apiClient is the HTTP plumbing shared by the remote providers.
type apiClient struct {
	provider   string
	client     *http.Client
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
	setAuth    func(*http.Request)
	parseError func(status int, body []byte) *APIError
}

// post sends a JSON body and returns the response once it has a 200
// status. 429 and 5xx responses are retried with linear backoff.
func (a *apiClient) post(ctx context.Context, url, accept string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(a.provider, fmt.Errorf("marshal payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.retryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(a.provider, fmt.Errorf("create request: %w", err))
		}
		a.setAuth(req)
		req.Header.Set("Content-Type", "application/json")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(a.provider, err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := a.readError(resp)
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		a.logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}
	return nil, lastErr
}

// get performs an authenticated GET and discards a 200 body.
func (a *apiClient) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapError(a.provider, err)
	}
	a.setAuth(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return WrapError(a.provider, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return a.readError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (a *apiClient) readError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := a.parseError(resp.StatusCode, body)
	apiErr.Provider = a.provider
	return apiErr
}

func (a *apiClient) close() {
	a.client.CloseIdleConnections()
}

// bodyStream adapts an HTTP response body to AudioStream. Chunks are kept
// sample aligned so no PCM16 sample straddles two reads.
type bodyStream struct {
	body   io.ReadCloser
	format AudioFormat
	buf    [4096]byte
	carry  []byte
}

func (s *bodyStream) Read() ([]byte, error) {
	for {
		n, err := s.body.Read(s.buf[:])
		data := append(s.carry, s.buf[:n]...)
		s.carry = nil

		if len(data)%2 == 1 {
			s.carry = []byte{data[len(data)-1]}
			data = data[:len(data)-1]
		}
		if len(data) > 0 {
			return data, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *bodyStream) Close() error        { return s.body.Close() }
func (s *bodyStream) Format() AudioFormat { return s.format }

// bufferStream yields an in-memory buffer as a single chunk.
type bufferStream struct {
	data   []byte
	done   bool
	format AudioFormat
}

func (s *bufferStream) Read() ([]byte, error) {
	if s.done || len(s.data) == 0 {
		return nil, nil
	}
	s.done = true
	return s.data, nil
}

func (s *bufferStream) Close() error        { return nil }
func (s *bufferStream) Format() AudioFormat { return s.format }
