package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/opentutor/tutor-ops-api/pkg/config"
)

// ProvisionRequest describes the session a room is needed for.
type ProvisionRequest struct {
	SessionID       string   `json:"session_id"`
	BatchID         string   `json:"batch_id"`
	Subject         string   `json:"subject"`
	StartsAt        string   `json:"starts_at"`
	DurationMinutes int      `json:"duration_minutes"`
	HostID          string   `json:"host_id,omitempty"`
	ParticipantIDs  []string `json:"participant_ids,omitempty"`
}

// JoinArtifact is a per-participant join credential returned by the provider.
type JoinArtifact struct {
	ParticipantID string `json:"participant_id"`
	JoinURL       string `json:"join_url"`
	Token         string `json:"token,omitempty"`
}

// Room is a provisioned meeting room.
type Room struct {
	Reference     string         `json:"reference"`
	HostURL       string         `json:"host_url"`
	JoinArtifacts []JoinArtifact `json:"join_artifacts"`
}

// Client calls the external meeting-provisioning service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a provisioner client from config.
func NewClient(cfg config.MeetingConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: retries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Provision requests a meeting room for the session. Transient failures are
// retried with backoff; the caller's context bounds the whole attempt so a
// timed-out start leaves no half-provisioned state on our side.
func (c *Client) Provision(ctx context.Context, req ProvisionRequest) (*Room, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal provision request: %w", err)
	}

	var room Room
	err = retry.Do(
		func() error {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rooms", bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			httpReq.Header.Set("Content-Type", "application/json")
			if c.apiKey != "" {
				httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
			}

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 {
				return fmt.Errorf("provisioner returned %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
				return retry.Unrecoverable(fmt.Errorf("provisioner returned %d", resp.StatusCode))
			}
			if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode provision response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("provisioning attempt failed",
				zap.Uint("attempt", n+1),
				zap.String("session_id", req.SessionID),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("provision room for session %s: %w", req.SessionID, err)
	}
	if room.Reference == "" {
		return nil, fmt.Errorf("provisioner returned empty room reference for session %s", req.SessionID)
	}
	return &room, nil
}
