package psp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// PayPalHeaders carries the five signature headers PayPal sends with
// every webhook delivery. All must be present.
type PayPalHeaders struct {
	TransmissionID   string
	TransmissionTime string
	CertURL          string
	AuthAlgo         string
	TransmissionSig  string
}

func (h PayPalHeaders) Complete() bool {
	return h.TransmissionID != "" && h.TransmissionTime != "" &&
		h.CertURL != "" && h.AuthAlgo != "" && h.TransmissionSig != ""
}

var ErrPayPalVerification = errors.New("paypal webhook verification failed")

// PayPalClient talks to the PayPal REST API for webhook signature
// verification. Tokens are cached until shortly before expiry.
type PayPalClient struct {
	clientID  string
	secret    string
	webhookID string
	apiBase   string
	http      *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalClient(clientID, secret, webhookID, apiBase string) *PayPalClient {
	return &PayPalClient{
		clientID:  clientID,
		secret:    secret,
		webhookID: webhookID,
		apiBase:   apiBase,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/v1/oauth2/token", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token request failed: %s", resp.Status)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	c.token = body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return c.token, nil
}

// VerifyWebhookSignature asks PayPal to validate a delivery against
// the configured webhook id. Network failures and non-SUCCESS statuses
// both come back as errors; callers treat either as invalid.
func (c *PayPalClient) VerifyWebhookSignature(ctx context.Context, headers PayPalHeaders, rawEvent []byte) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"transmission_id":   headers.TransmissionID,
		"transmission_time": headers.TransmissionTime,
		"cert_url":          headers.CertURL,
		"auth_algo":         headers.AuthAlgo,
		"transmission_sig":  headers.TransmissionSig,
		"webhook_id":        c.webhookID,
		"webhook_event":     json.RawMessage(rawEvent),
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/v1/notifications/verify-webhook-signature", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", ErrPayPalVerification, resp.Status)
	}

	var body struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if body.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: %s", ErrPayPalVerification, body.VerificationStatus)
	}
	return nil
}
