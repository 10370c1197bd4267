/**
 * @description
 * This package provides a client for the Plaid bank-data aggregator. It
 * covers the link-token / public-token exchange flow the service uses to
 * link external organization bank accounts: issue a Link token, exchange the
 * public token for an access token, and retrieve the linked accounts with
 * their ACH account and routing numbers from the auth endpoint.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package plaidclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// Client is a client for the Plaid API.
type Client struct {
	BaseURL    string
	ClientID   string
	Secret     string
	HTTPClient *http.Client
}

// NewClient creates a new Plaid API client.
func NewClient(baseURL, clientID, secret string) *Client {
	return &Client{
		BaseURL:  baseURL,
		ClientID: clientID,
		Secret:   secret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LinkedAccount is one bank account retrieved after a public-token exchange,
// enriched with the ACH numbers from the auth endpoint.
type LinkedAccount struct {
	AccountID     string
	Name          string
	Subtype       string
	AccountNumber int64
	RoutingNumber int64
}

// ExchangeResult carries the access token and the accounts linked under it.
type ExchangeResult struct {
	AccessToken string
	Accounts    []LinkedAccount
}

// ErrorResponse represents an error returned by the Plaid API.
type ErrorResponse struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("plaid api error: %s (%s) - %s", e.ErrorType, e.ErrorCode, e.ErrorMessage)
}

// CreateLinkToken issues a Link token scoped to the given end user.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	payload := map[string]interface{}{
		"client_id":     c.ClientID,
		"secret":        c.Secret,
		"client_name":   "Jawnt App",
		"language":      "en",
		"country_codes": []string{"US"},
		"products":      []string{"auth"},
		"user": map[string]string{
			"client_user_id": userID,
		},
	}

	var resp struct {
		LinkToken string `json:"link_token"`
	}
	if err := c.post(ctx, "/link/token/create", payload, &resp); err != nil {
		return "", err
	}
	return resp.LinkToken, nil
}

// ExchangePublicToken trades the public token from Link for an access token
// and retrieves the linked accounts with their ACH numbers.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error) {
	exchangePayload := map[string]string{
		"client_id":    c.ClientID,
		"secret":       c.Secret,
		"public_token": publicToken,
	}

	var exchangeResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.post(ctx, "/item/public_token/exchange", exchangePayload, &exchangeResp); err != nil {
		return nil, err
	}

	authPayload := map[string]string{
		"client_id":    c.ClientID,
		"secret":       c.Secret,
		"access_token": exchangeResp.AccessToken,
	}

	var authResp struct {
		Accounts []struct {
			AccountID string `json:"account_id"`
			Name      string `json:"name"`
			Subtype   string `json:"subtype"`
		} `json:"accounts"`
		Numbers struct {
			ACH []struct {
				AccountID string `json:"account_id"`
				Account   string `json:"account"`
				Routing   string `json:"routing"`
			} `json:"ach"`
		} `json:"numbers"`
	}
	if err := c.post(ctx, "/auth/get", authPayload, &authResp); err != nil {
		return nil, err
	}

	numbersByAccount := make(map[string][2]int64, len(authResp.Numbers.ACH))
	for _, ach := range authResp.Numbers.ACH {
		accountNumber, err := strconv.ParseInt(ach.Account, 10, 64)
		if err != nil {
			log.Printf("level=warn component=plaid_client op=auth_get account_id=%s msg=\"non-numeric account number\"", ach.AccountID)
			continue
		}
		routingNumber, err := strconv.ParseInt(ach.Routing, 10, 64)
		if err != nil {
			log.Printf("level=warn component=plaid_client op=auth_get account_id=%s msg=\"non-numeric routing number\"", ach.AccountID)
			continue
		}
		numbersByAccount[ach.AccountID] = [2]int64{accountNumber, routingNumber}
	}

	result := &ExchangeResult{AccessToken: exchangeResp.AccessToken}
	for _, account := range authResp.Accounts {
		numbers := numbersByAccount[account.AccountID]
		result.Accounts = append(result.Accounts, LinkedAccount{
			AccountID:     account.AccountID,
			Name:          account.Name,
			Subtype:       account.Subtype,
			AccountNumber: numbers[0],
			RoutingNumber: numbers[1],
		})
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal plaid request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create plaid request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute plaid request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read plaid response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=plaid_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return fmt.Errorf("failed to decode plaid error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=plaid_client op=%s status=%d err=%q", path, resp.StatusCode, errResp.Error())
		return &errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode plaid response: %w", err)
	}
	return nil
}
