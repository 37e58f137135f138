// Package captcha verifies Google reCAPTCHA v3 tokens.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
)

const (
	DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	DefaultMinScore  = 0.5

	ActionSubmitRequest = "submit_request"
	ActionRegister      = "register"
)

// Verifier decides whether a client token proves a human performed action
type Verifier interface {
	Verify(ctx context.Context, token, expectedAction string) bool
	IsConfigured() bool
}

type siteVerifyResponse struct {
	Success     bool      `json:"success"`
	Score       float64   `json:"score"`
	Action      string    `json:"action"`
	ChallengeTS time.Time `json:"challenge_ts"`
	Hostname    string    `json:"hostname"`
	ErrorCodes  []string  `json:"error-codes"`
}

// Recaptcha calls the siteverify endpoint. With no secret configured every
// token passes, which keeps local development usable.
type Recaptcha struct {
	secret    string
	minScore  float64
	verifyURL string
	client    *http.Client
}

type Option func(*Recaptcha)

func WithVerifyURL(u string) Option {
	return func(r *Recaptcha) { r.verifyURL = u }
}

func WithHTTPClient(c *http.Client) Option {
	return func(r *Recaptcha) { r.client = c }
}

// NewRecaptcha accepts a score threshold in [0, 1]; anything outside falls
// back to DefaultMinScore.
func NewRecaptcha(secret string, minScore float64, opts ...Option) *Recaptcha {
	if minScore < 0 || minScore > 1 {
		minScore = DefaultMinScore
	}
	r := &Recaptcha{
		secret:    secret,
		minScore:  minScore,
		verifyURL: DefaultVerifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recaptcha) IsConfigured() bool {
	return r.secret != ""
}

func (r *Recaptcha) Verify(ctx context.Context, token, expectedAction string) bool {
	if !r.IsConfigured() {
		log.Warn("reCAPTCHA not configured. Skipping verification.")
		return true
	}
	if strings.TrimSpace(token) == "" {
		log.Warn("Empty CAPTCHA token received")
		return false
	}

	result, err := r.siteVerify(ctx, token)
	if err != nil {
		log.WithError(err).Error("Error verifying reCAPTCHA")
		return false
	}

	if !result.Success {
		log.Warnf("reCAPTCHA verification failed. Errors: %s", strings.Join(result.ErrorCodes, ", "))
		return false
	}
	if result.Score < r.minScore {
		log.Warnf("reCAPTCHA score too low: %.2f (min: %.2f)", result.Score, r.minScore)
		return false
	}
	if expectedAction != "" && result.Action != expectedAction {
		log.Warnf("reCAPTCHA action mismatch. Expected: %s, Got: %s", expectedAction, result.Action)
		return false
	}

	log.WithFields(log.Fields{"score": result.Score, "action": result.Action}).Info("reCAPTCHA verified")
	return true
}

func (r *Recaptcha) siteVerify(ctx context.Context, token string) (*siteVerifyResponse, error) {
	form := url.Values{"secret": {r.secret}, "response": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.verifyURL, strings.NewReader(form.Encode()))
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
		return nil, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var result siteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse reCAPTCHA response: %w", err)
	}
	return &result, nil
}
