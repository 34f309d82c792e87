package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
}

// NewHTTPClient builds the production backend client.
func NewHTTPClient(baseURL, apiKey string, log *zap.Logger) Client {
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.Named("backend.client"),
	}
}

type postReceiptBody struct {
	ReceiptPostRequest
	ReceiptB64 string `json:"receipt_b64"`
}

type postReceiptResponse struct {
	CustomerInfo    CustomerInfo     `json:"customer_info"`
	AttributeErrors []AttributeError `json:"attribute_errors,omitempty"`
}

func (c *httpClient) PostReceipt(ctx context.Context, req ReceiptPostRequest) (CustomerInfo, []AttributeError, error) {
	body := postReceiptBody{ReceiptPostRequest: req}
	body.ReceiptB64 = base64.StdEncoding.EncodeToString(req.ReceiptData)
	body.ReceiptData = nil

	var resp postReceiptResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/receipts", body, &resp); err != nil {
		return CustomerInfo{}, nil, err
	}
	return resp.CustomerInfo, resp.AttributeErrors, nil
}

type postAttributesBody struct {
	Attributes map[string]AttributeValue `json:"attributes"`
}

type postAttributesResponse struct {
	AttributeErrors []AttributeError `json:"attribute_errors,omitempty"`
}

func (c *httpClient) PostSubscriberAttributes(ctx context.Context, appUserID string, attrs map[string]AttributeValue) ([]AttributeError, error) {
	var resp postAttributesResponse
	path := "/v1/subscribers/" + url.PathEscape(appUserID) + "/attributes"
	if err := c.doJSON(ctx, http.MethodPost, path, postAttributesBody{Attributes: attrs}, &resp); err != nil {
		return nil, err
	}
	return resp.AttributeErrors, nil
}

func (c *httpClient) GetOfferings(ctx context.Context, appUserID string) (Offerings, error) {
	var resp Offerings
	path := "/v1/subscribers/" + url.PathEscape(appUserID) + "/offerings"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return Offerings{}, err
	}
	return resp, nil
}

type eligibilityBody struct {
	ProductIDs []string `json:"product_ids"`
}

type eligibilityResponse struct {
	Eligibility map[string]IntroEligibility `json:"eligibility"`
}

func (c *httpClient) CheckIntroEligibility(ctx context.Context, appUserID string, productIDs []string) (map[string]IntroEligibility, error) {
	var resp eligibilityResponse
	path := "/v1/subscribers/" + url.PathEscape(appUserID) + "/intro_eligibility"
	if err := c.doJSON(ctx, http.MethodPost, path, eligibilityBody{ProductIDs: productIDs}, &resp); err != nil {
		return nil, err
	}
	return resp.Eligibility, nil
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *httpClient) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return errors.Join(ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Join(ErrNetwork, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, out)

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var envelope errorEnvelope
		_ = json.Unmarshal(raw, &envelope)
		c.log.Warn("backend rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", envelope.Error.Code))
		return &Error{
			StatusCode: resp.StatusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}

	default:
		return ErrNetwork
	}
}
