// Package captcha verifies reCAPTCHA responses submitted with the public
// password recovery forms.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/clinic-scheduling/internal/config"
)

var (
	// ErrMissing is returned when the form carried no captcha response.
	ErrMissing = errors.New("captcha required")
	// ErrRejected is returned when the provider refused the response.
	ErrRejected = errors.New("captcha rejected")
)

// Verifier checks a captcha response token.
type Verifier interface {
	Verify(ctx context.Context, response, remoteIP string) error
}

// Disabled accepts everything.  It is used when no secret is configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) error { return nil }

// ReCaptcha calls Google's siteverify endpoint.
type ReCaptcha struct {
	secret   string
	endpoint string
	minScore float64
	client   *http.Client
	cb       *gobreaker.CircuitBreaker[*verifyResponse]
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

// New returns Disabled when cfg has no secret.
func New(cfg config.CaptchaConfig, client *http.Client) Verifier {
	if strings.TrimSpace(cfg.Secret) == "" {
		return Disabled{}
	}
	return NewReCaptcha(cfg.Secret, cfg.VerifyURL, cfg.MinScore, client)
}

func NewReCaptcha(secret, endpoint string, minScore float64, client *http.Client) *ReCaptcha {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ReCaptcha{
		secret:   secret,
		endpoint: endpoint,
		minScore: minScore,
		client:   client,
		cb: gobreaker.NewCircuitBreaker[*verifyResponse](gobreaker.Settings{
			Name:        "recaptcha",
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		}),
	}
}

// Verify succeeds when the provider reports success and, for v3 tokens,
// the score reaches the configured minimum.
func (r *ReCaptcha) Verify(ctx context.Context, response, remoteIP string) error {
	if strings.TrimSpace(response) == "" {
		return ErrMissing
	}
	res, err := r.cb.Execute(func() (*verifyResponse, error) { return r.call(ctx, response, remoteIP) })
	if err != nil {
		return fmt.Errorf("captcha verify: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(res.ErrorCodes, ","))
	}
	if res.Score != nil && *res.Score < r.minScore {
		return fmt.Errorf("%w: score %.2f", ErrRejected, *res.Score)
	}
	return nil
}

func (r *ReCaptcha) call(ctx context.Context, response, remoteIP string) (*verifyResponse, error) {
	form := url.Values{"secret": {r.secret}, "response": {response}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("siteverify status %d", resp.StatusCode)
	}
	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
