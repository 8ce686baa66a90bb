package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const quoteTokenPath = "/api-quote-tokens"

// HTTPProvider fetches quote tokens from the broker API and caches them.
type HTTPProvider struct {
	httpClient   *http.Client
	baseURL      string
	sessionToken string
	limiter      *rate.Limiter
	retryCount   int
	retryDelay   time.Duration
	cacheTTL     time.Duration
	logger       *zap.Logger

	mu        sync.Mutex
	cached    Credentials
	fetchedAt time.Time
}

type quoteTokenResponse struct {
	Data Credentials `json:"data"`
}

func NewHTTPProvider(baseURL, sessionToken string, ratePerSec int, timeout, retryDelay time.Duration, retryCount int, cacheTTL time.Duration, logger *zap.Logger) *HTTPProvider {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}

	return &HTTPProvider{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:      baseURL,
		sessionToken: sessionToken,
		limiter:      rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount:   retryCount,
		retryDelay:   retryDelay,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// Token returns cached credentials while they are fresh, otherwise asks the
// API for new ones.
func (p *HTTPProvider) Token(ctx context.Context) (Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached.Token != "" && p.cacheTTL > 0 && time.Since(p.fetchedAt) < p.cacheTTL {
		return p.cached, nil
	}

	creds, err := p.fetch(ctx)
	if err != nil {
		return Credentials{}, err
	}

	p.cached = creds
	p.fetchedAt = time.Now()
	p.logger.Debug("quote token refreshed",
		zap.String("token", MaskToken(creds.Token)),
		zap.String("dxlink_url", creds.DxlinkURL),
		zap.String("level", creds.Level),
	)
	return creds, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (p *HTTPProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = Credentials{}
	p.fetchedAt = time.Time{}
}

func (p *HTTPProvider) fetch(ctx context.Context) (Credentials, error) {
	// Wait for rate limiter
	if err := p.limiter.Wait(ctx); err != nil {
		return Credentials{}, fmt.Errorf("rate limiter: %w", err)
	}

	url := p.baseURL + quoteTokenPath
	p.logger.Debug("requesting quote token", zap.String("url", url))

	var lastErr error
	for attempt := 0; attempt <= p.retryCount; attempt++ {
		if attempt > 0 {
			delay := p.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			p.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return Credentials{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Credentials{}, fmt.Errorf("creating request: %w", err)
		}

		// The broker expects the raw session token, no scheme.
		req.Header.Set("Authorization", p.sessionToken)
		req.Header.Set("Accept", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return Credentials{}, ErrAuthFailed
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = ErrRateLimited
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return Credentials{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		var tokenResp quoteTokenResponse
		if err := json.Unmarshal(body, &tokenResp); err != nil {
			return Credentials{}, fmt.Errorf("decoding response: %w", err)
		}
		if tokenResp.Data.Token == "" {
			return Credentials{}, fmt.Errorf("decoding response: %w", ErrNoToken)
		}

		return tokenResp.Data, nil
	}

	return Credentials{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// MaskToken masks all but the first 4 characters of a token for logging.
func MaskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
