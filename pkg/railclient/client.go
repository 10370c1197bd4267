/**
 * @description
 * This package provides a client for the external payment rail that executes
 * ACH debits, ACH credits, and book transfers, and reports asynchronous
 * settlement status. It encapsulates authenticated HTTP requests to the
 * rail's endpoints, request body construction, and response parsing.
 *
 * The rail is idempotent on the submission idempotency key and its status
 * endpoint is side-effect free, so both operations are safe to retry.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package railclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Status is the settlement state the rail reports for a payment.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Client is a client for the payment rail API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new payment rail client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type endpointData struct {
	ID string `json:"id"`
}

// paymentInstruction is the payload for the rail's payment submission endpoint.
type paymentInstruction struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Currency       string `json:"currency"`
			Amount         int64  `json:"amount"`
			IdempotencyKey string `json:"idempotencyKey"`
		} `json:"attributes"`
		Relationships struct {
			SourceAccount struct {
				Data endpointData `json:"data"`
			} `json:"sourceAccount"`
			DestinationAccount struct {
				Data endpointData `json:"data"`
			} `json:"destinationAccount"`
		} `json:"relationships"`
	} `json:"data"`
}

// SubmissionAck is the rail's acknowledgment of an accepted payment
// instruction. Settlement completes asynchronously; Status here is the
// initial state, almost always PENDING.
type SubmissionAck struct {
	PaymentID string
	Status    Status
}

type submissionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Status Status `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

type statusResponse struct {
	Data struct {
		Status Status `json:"status"`
	} `json:"data"`
}

// ErrorResponse represents an error returned by the rail API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("rail api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown rail api error"
}

// SubmitDebit instructs the rail to pull funds from the source account.
func (c *Client) SubmitDebit(ctx context.Context, source, destination string, amount int64, idempotencyKey string) (*SubmissionAck, error) {
	return c.doSubmit(ctx, "ACHDebit", source, destination, amount, idempotencyKey)
}

// SubmitCredit instructs the rail to push funds to the destination account.
func (c *Client) SubmitCredit(ctx context.Context, source, destination string, amount int64, idempotencyKey string) (*SubmissionAck, error) {
	return c.doSubmit(ctx, "ACHCredit", source, destination, amount, idempotencyKey)
}

// SubmitBook instructs the rail to move funds between two accounts held at
// the same institution, bypassing the ACH network.
func (c *Client) SubmitBook(ctx context.Context, source, destination string, amount int64, idempotencyKey string) (*SubmissionAck, error) {
	return c.doSubmit(ctx, "BookTransfer", source, destination, amount, idempotencyKey)
}

func (c *Client) doSubmit(ctx context.Context, instructionType, source, destination string, amount int64, idempotencyKey string) (*SubmissionAck, error) {
	payload := paymentInstruction{}
	payload.Data.Type = instructionType
	payload.Data.Attributes.Currency = "USD"
	payload.Data.Attributes.Amount = amount
	payload.Data.Attributes.IdempotencyKey = idempotencyKey
	payload.Data.Relationships.SourceAccount.Data.ID = source
	payload.Data.Relationships.DestinationAccount.Data.ID = destination

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment instruction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/v1/payments", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create submission request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-rail-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute submission request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read submission response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=rail_client op=submit type=%s status=%d msg=\"non-2xx response (unparsable error body)\"", instructionType, resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=rail_client op=submit type=%s status=%d err=%q", instructionType, resp.StatusCode, errResp.Error())
		return nil, &errResp
	}

	var successResp submissionResponse
	if err := json.Unmarshal(bodyBytes, &successResp); err != nil {
		return nil, fmt.Errorf("failed to decode submission response: %w", err)
	}

	ack := &SubmissionAck{
		PaymentID: successResp.Data.ID,
		Status:    successResp.Data.Attributes.Status,
	}
	if ack.Status == "" {
		ack.Status = StatusPending
	}
	return ack, nil
}

// GetPaymentStatus fetches the current settlement status for a payment from
// the rail. Safe to call repeatedly.
func (c *Client) GetPaymentStatus(ctx context.Context, paymentUUID string) (Status, error) {
	url := c.BaseURL + "/api/v1/payments/" + paymentUUID + "/status"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create status request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-rail-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute status request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=rail_client op=get_status payment_uuid=%s status=%d msg=\"non-2xx response (unparsable error body)\"", paymentUUID, resp.StatusCode)
			return "", fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=rail_client op=get_status payment_uuid=%s status=%d err=%q", paymentUUID, resp.StatusCode, errResp.Error())
		return "", &errResp
	}

	var status statusResponse
	if err := json.Unmarshal(bodyBytes, &status); err != nil {
		return "", fmt.Errorf("failed to decode status response: %w", err)
	}

	return status.Data.Status, nil
}
