package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go-label-inspector/internal/config"
	apperrors "go-label-inspector/internal/errors"
	"go-label-inspector/internal/logger"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client invokes the label inspection workflow. It holds no per-call state;
// the pooled HTTP client and optional rate limiter are shared by all calls.
type Client struct {
	cfg        config.WorkflowConfig
	baseURL    string
	mode       ResponseMode
	httpClient *http.Client
	uploader   Uploader
	validator  URLChecker
	normalizer *Normalizer
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
	newUser    func() string
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the pooled client built from the configuration
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUploader replaces the multipart uploader
func WithUploader(u Uploader) Option {
	return func(c *Client) { c.uploader = u }
}

// WithSleep replaces the backoff sleep
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithUserTokens replaces the per-call user token generator
func WithUserTokens(gen func() string) Option {
	return func(c *Client) { c.newUser = gen }
}

func NewClient(cfg config.WorkflowConfig, validator URLChecker, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		mode:       ParseResponseMode(cfg.ResponseMode),
		validator:  validator,
		normalizer: NewNormalizer(cfg.ReportMarker),
		sleep:      sleepContext,
		newUser:    newUserToken,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = newHTTPClient(cfg)
	}
	if c.uploader == nil {
		c.uploader = NewHTTPUploader(c.httpClient, c.baseURL, cfg.APIKey, cfg.UploadTimeout)
	}
	return c
}

// Mode returns the configured response mode
func (c *Client) Mode() ResponseMode {
	return c.mode
}

// RunDetection inspects one label image with the configured response mode
func (c *Client) RunDetection(ctx context.Context, image ImageSource, foodType, packageFoodType, singleOrMulti, packageSize string) CallOutcome {
	return c.Invoke(ctx, DetectionRequest{
		Image:           image,
		FoodType:        foodType,
		PackageFoodType: packageFoodType,
		SingleOrMulti:   singleOrMulti,
		PackageSize:     packageSize,
	}, c.mode)
}

// Invoke runs the workflow for req. It always returns exactly one of
// *Success or *Failure.
func (c *Client) Invoke(ctx context.Context, req DetectionRequest, mode ResponseMode) CallOutcome {
	user := req.CorrelationID
	if user == "" {
		user = c.newUser()
	}
	log := logger.WithFields(logrus.Fields{
		"user":          user,
		"response_mode": mode,
		"food_type":     req.FoodType,
	})

	selector := NewTransferSelector(c.validator, c.uploader)
	td, err := selector.SelectTransfer(ctx, req.Image, user)
	if err != nil {
		appErr := toAppError(err, apperrors.NewUploadError)
		attempts := 1
		if appErr.Type == apperrors.ErrorTypeValidation {
			attempts = 0
		}
		log.WithError(appErr).Error("Image transfer failed")
		return &Failure{Err: appErr, Attempts: attempts}
	}
	log = log.WithField("transfer_method", td.Method())

	body, err := json.Marshal(buildRunRequest(req, td, mode, user))
	if err != nil {
		return &Failure{Err: apperrors.NewInternalError("failed to encode workflow request", err)}
	}

	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	var last attemptResult
	attempts := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return &Failure{Err: apperrors.NewTimeoutError("gave up waiting for the outbound rate limiter", err), Attempts: attempts}
			}
		}

		attempts = attempt
		last = c.attempt(ctx, body, mode)
		if last.err == nil {
			log.WithFields(logrus.Fields{
				"attempts":        attempts,
				"workflow_run_id": last.meta.WorkflowRunID,
				"total_tokens":    last.meta.TotalTokens,
				"split_method":    last.result.Method,
				"duration_ms":     time.Since(start).Milliseconds(),
			}).Info("Workflow call succeeded")
			return &Success{
				Result:   last.result,
				Metadata: last.meta,
				Attempts: attempts,
				Raw:      last.raw,
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Failure{
				Err:      apperrors.NewTimeoutError("workflow call canceled or past its deadline", ctxErr),
				Attempts: attempts,
				Record:   last.record,
			}
		}

		log.WithError(last.err).WithField("attempt", attempt).Warn("Workflow call attempt failed")

		if !apperrors.IsRetryable(last.err) || attempt == maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			log.WithField("delay", delay.String()).Warn("Deadline too close for another attempt")
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return &Failure{
				Err:      apperrors.NewTimeoutError("canceled while waiting to retry", err),
				Attempts: attempts,
				Record:   last.record,
			}
		}
	}

	// The workflow accepted the request, so it may well have finished server-side.
	if last.err.Type == apperrors.ErrorTypeStreamInterrupted {
		log.WithError(last.err).WithField("attempts", attempts).Warn("Returning partial result after interrupted stream")
		s := &Success{
			Result:   NormalizedResult{Method: MethodNone},
			Attempts: attempts,
			Partial:  true,
			Warning:  last.err.Error(),
		}
		if last.record != nil {
			s.Metadata = last.record.Metadata()
			s.Raw = last.record.Outputs
		}
		return s
	}

	log.WithError(last.err).WithField("attempts", attempts).Error("Workflow call failed")
	return &Failure{Err: last.err, Attempts: attempts, Record: last.record}
}

// backoff returns the delay after failed attempt n (1-based): base * 2^n
func (c *Client) backoff(n int) time.Duration {
	return c.cfg.BackoffBase * time.Duration(1<<uint(n))
}

type attemptResult struct {
	result NormalizedResult
	meta   RunMetadata
	raw    map[string]any
	record *ExecutionRecord
	err    *apperrors.AppError
}

func (c *Client) attempt(ctx context.Context, body []byte, mode ResponseMode) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/workflows/run", bytes.NewReader(body))
	if err != nil {
		return attemptResult{err: apperrors.NewInternalError("invalid workflow URL", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if mode == ModeStreaming {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attemptResult{err: classifyTransportError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return attemptResult{err: apperrors.NewRemoteRejectedError(
			fmt.Sprintf("workflow service returned status %d", resp.StatusCode), nil,
		).WithDetails(truncate(string(snippet), 512))}
	}

	if mode == ModeBlocking {
		return c.readBlocking(ctx, resp.Body)
	}
	return c.readStream(ctx, resp.Body)
}

func classifyTransportError(err error) *apperrors.AppError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewTimeoutError("workflow request timed out", err)
	}
	return apperrors.NewConnectError("could not reach workflow service", err)
}

func (c *Client) readStream(ctx context.Context, body io.Reader) attemptResult {
	record, err := ParseStream(ctx, body)
	if len(record.Warnings) > 0 {
		logger.WithFields(logrus.Fields{
			"workflow_run_id": record.WorkflowRunID,
			"warnings":        record.Warnings,
		}).Warn("Skipped undecodable stream lines")
	}

	switch {
	case err == nil:
		return attemptResult{
			result: c.normalizer.Normalize(record.Outputs),
			meta:   record.Metadata(),
			raw:    record.Outputs,
			record: record,
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return attemptResult{record: record, err: apperrors.NewTimeoutError("stream read aborted", err)}
	case errors.Is(err, ErrWorkflowFailed):
		return attemptResult{record: record, err: apperrors.NewRemoteWorkflowFailedError("workflow run failed", err)}
	case errors.Is(err, ErrStreamInterrupted):
		return attemptResult{record: record, err: apperrors.NewStreamInterruptedError("stream lost after the workflow accepted the request", err)}
	default:
		return attemptResult{record: record, err: apperrors.NewIncompleteStreamError("stream ended before the workflow succeeded", err)}
	}
}

type blockingResponse struct {
	TaskID        string `json:"task_id"`
	WorkflowRunID string `json:"workflow_run_id"`
	Data          struct {
		ID          string `json:"id"`
		WorkflowID  string `json:"workflow_id"`
		Status      string `json:"status"`
		Error       string `json:"error"`
		ElapsedTime number `json:"elapsed_time"`
		TotalTokens number `json:"total_tokens"`
		TotalSteps  number `json:"total_steps"`
		CreatedAt   number `json:"created_at"`
		FinishedAt  number `json:"finished_at"`
	} `json:"data"`
}

func (c *Client) readBlocking(ctx context.Context, body io.Reader) attemptResult {
	raw, err := io.ReadAll(body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attemptResult{err: apperrors.NewTimeoutError("response read aborted", ctxErr)}
		}
		return attemptResult{err: apperrors.NewStreamInterruptedError("response body lost after the workflow accepted the request", err)}
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil || generic == nil {
		return attemptResult{err: apperrors.NewMalformedResponseError("workflow response is not a JSON object", err).
			WithDetails(truncate(string(raw), 512))}
	}
	var br blockingResponse
	if err := json.Unmarshal(raw, &br); err != nil {
		return attemptResult{err: apperrors.NewMalformedResponseError("workflow response has unexpected field types", err)}
	}

	meta := RunMetadata{
		TaskID:        br.TaskID,
		WorkflowRunID: br.WorkflowRunID,
		WorkflowID:    br.Data.WorkflowID,
		Status:        br.Data.Status,
		ElapsedTime:   float64(br.Data.ElapsedTime),
		TotalTokens:   int64(br.Data.TotalTokens),
		TotalSteps:    int(br.Data.TotalSteps),
		CreatedAt:     int64(br.Data.CreatedAt),
		FinishedAt:    int64(br.Data.FinishedAt),
	}
	if meta.WorkflowRunID == "" {
		meta.WorkflowRunID = br.Data.ID
	}

	if br.Data.Status == string(StatusFailed) || br.Data.Status == "stopped" {
		msg := "workflow run " + br.Data.Status
		if br.Data.Error != "" {
			msg += ": " + br.Data.Error
		}
		return attemptResult{meta: meta, err: apperrors.NewRemoteWorkflowFailedError(msg, nil)}
	}

	outputs := blockingOutputs(generic)
	return attemptResult{
		result: c.normalizer.Normalize(outputs),
		meta:   meta,
		raw:    outputs,
	}
}

// blockingOutputs finds the output mapping: data.outputs, then outputs, then data
func blockingOutputs(body map[string]any) map[string]any {
	data, _ := body["data"].(map[string]any)
	if out, ok := data["outputs"].(map[string]any); ok {
		return out
	}
	if out, ok := body["outputs"].(map[string]any); ok {
		return out
	}
	if data != nil {
		return data
	}
	return body
}

// ProbeResult describes a connectivity check against the workflow service
type ProbeResult struct {
	Reachable  bool          `json:"reachable"`
	StatusCode int           `json:"status_code"`
	Latency    time.Duration `json:"latency"`
	Mode       ResponseMode  `json:"response_mode"`
}

// Probe issues GET {base}/parameters to verify the service and API key.
func (c *Client) Probe(ctx context.Context) (ProbeResult, error) {
	res := ProbeResult{Mode: c.mode}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/parameters", nil)
	if err != nil {
		return res, apperrors.NewInternalError("invalid workflow URL", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		return res, classifyTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	res.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		return res, apperrors.NewRemoteRejectedError(fmt.Sprintf("workflow service returned status %d", resp.StatusCode), nil)
	}
	res.Reachable = true
	return res, nil
}

func toAppError(err error, wrap func(string, error) *apperrors.AppError) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return wrap(err.Error(), err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
