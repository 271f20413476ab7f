package moments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2023lic14/momentmcp/internal/model"
)

const (
	defaultTimeout = 30 * time.Second

	// Poll loop bounds. Caller-supplied values are clamped into these.
	MinPollInterval = 250 * time.Millisecond
	MaxPollInterval = 10 * time.Second
	MinPollTimeout  = 5 * time.Second
	MaxPollTimeout  = 20 * time.Minute
)

// Client talks to the external moment pipeline: multipart job submission
// plus status polling until the render completes.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SubmitRequest carries one job submission. BaseURL overrides the client
// default when set.
type SubmitRequest struct {
	Audio         []byte
	Filename      string
	MimeType      string
	BlueprintJSON string
	OutputKind    string
	BaseURL       string
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit posts the audio as a multipart body and returns the job id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", &model.ProviderError{
			Code:    model.CodeMissingInput,
			Message: "audio payload is empty",
		}
	}
	base, err := c.resolveBase(req.BaseURL)
	if err != nil {
		return "", err
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "audio.mp3"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to build multipart body", Cause: err}
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to write audio part", Cause: err}
	}
	if bp := strings.TrimSpace(req.BlueprintJSON); bp != "" {
		if err := writer.WriteField("blueprint_json", bp); err != nil {
			return "", &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to write blueprint field", Cause: err}
		}
	}
	if kind := strings.TrimSpace(req.OutputKind); kind != "" {
		if err := writer.WriteField("output_kind", kind); err != nil {
			return "", &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to write output_kind field", Cause: err}
		}
	}
	if err := writer.Close(); err != nil {
		return "", &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to finalize multipart body", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/create-moment", bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to build submit request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return "", &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "submit request failed", Retryable: true, Cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to read submit response", Retryable: true, StatusCode: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		message := strings.TrimSpace(string(respBody))
		if message == "" {
			message = fmt.Sprintf("moment api returned status %d", resp.StatusCode)
		}
		return "", &model.ProviderError{
			Code:       model.CodeUpstreamFailed,
			Message:    message,
			Retryable:  resp.StatusCode >= http.StatusInternalServerError,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	var parsed submitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to decode submit response", StatusCode: resp.StatusCode, Body: string(respBody), Cause: err}
	}
	if strings.TrimSpace(parsed.JobID) == "" {
		return "", &model.ProviderError{
			Code:       model.CodeMissingJobID,
			Message:    "submit response lacks job_id",
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	return parsed.JobID, nil
}

// PollOutcome is the result of AwaitCompletion. A timed-out job is an
// outcome, not an error: callers must be able to tell "still running" from
// "failed".
type PollOutcome struct {
	JobID     string
	Completed bool
	TimedOut  bool
	Status    model.StatusDocument
}

// AwaitCompletion polls job status at the given interval until the job
// reports COMPLETED or the timeout elapses. Any erroring poll iteration
// propagates immediately.
func (c *Client) AwaitCompletion(ctx context.Context, jobID, baseURL string, pollInterval, timeout time.Duration) (*PollOutcome, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, &model.ProviderError{
			Code:    model.CodeMissingInput,
			Message: "job id is required",
		}
	}
	base, err := c.resolveBase(baseURL)
	if err != nil {
		return nil, err
	}

	pollInterval = clampDuration(pollInterval, MinPollInterval, MaxPollInterval)
	timeout = clampDuration(timeout, MinPollTimeout, MaxPollTimeout)
	deadline := time.Now().Add(timeout)

	// Hard stop at timeout + one interval so a stalled status endpoint
	// cannot hold the caller past its budget.
	ctx, cancel := context.WithDeadline(ctx, deadline.Add(pollInterval))
	defer cancel()

	outcome := &PollOutcome{JobID: jobID}
	for {
		status, err := c.fetchStatus(ctx, base, jobID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && time.Now().After(deadline) {
				outcome.TimedOut = true
				return outcome, nil
			}
			return nil, err
		}
		outcome.Status = *status
		if status.Status == model.JobStatusCompleted {
			outcome.Completed = true
			return outcome, nil
		}
		if time.Now().After(deadline) {
			outcome.TimedOut = true
			return outcome, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (c *Client) fetchStatus(ctx context.Context, base, jobID string) (*model.StatusDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to build status request", Cause: err}
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "status request failed", Retryable: true, Cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to read status response", Retryable: true, StatusCode: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = fmt.Sprintf("moment api returned status %d", resp.StatusCode)
		}
		return nil, &model.ProviderError{
			Code:       model.CodeUpstreamFailed,
			Message:    message,
			Retryable:  resp.StatusCode >= http.StatusInternalServerError,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var status model.StatusDocument
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &model.ProviderError{Code: model.CodeUpstreamFailed, Message: "failed to decode status response", StatusCode: resp.StatusCode, Body: string(body), Cause: err}
	}
	return &status, nil
}

func (c *Client) resolveBase(override string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(override), "/")
	if base == "" {
		base = c.BaseURL
	}
	if base == "" {
		return "", &model.ProviderError{
			Code:    model.CodeMissingInput,
			Message: "moment api base url is not configured",
		}
	}
	return base, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
