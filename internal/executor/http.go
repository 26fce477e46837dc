package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/me/enrolld/pkg/model"
)

// HTTPExecutor talks to the automation driver running as a sidecar process.
// The driver owns the browser sessions and page scripting; this side only
// posts a step request and reads back the structured result.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPExecutor creates an executor posting to baseURL. The client timeout
// is generous because a single step can drive a browser for tens of seconds;
// the driver is still expected to bound its own latency below it.
func NewHTTPExecutor(baseURL string, logger *slog.Logger) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 3 * time.Minute},
		logger:  logger.With("component", "http-executor"),
	}
}

// stepRequest is the wire form of a step execution request. The resource is
// passed by masked reference only; the driver resolves the secret value from
// its own storage.
type stepRequest struct {
	AccountID   string `json:"account_id"`
	Step        string `json:"step"`
	Artifact    string `json:"artifact,omitempty"`
	ResourceID  string `json:"resource_id,omitempty"`
	ResourceRef string `json:"resource_ref,omitempty"`
}

// Execute posts the step to the driver and decodes the StepResult.
func (e *HTTPExecutor) Execute(ctx context.Context, req Request) (model.StepResult, error) {
	wire := stepRequest{
		AccountID: req.Job.AccountID,
		Step:      string(req.Step),
		Artifact:  req.Job.Artifact,
	}
	if req.Resource != nil {
		wire.ResourceID = req.Resource.ID
		wire.ResourceRef = req.Resource.Ref
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return model.StepResult{}, fmt.Errorf("marshal step request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return model.StepResult{}, fmt.Errorf("create step request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	e.logger.Debug("step dispatched", "account_id", req.Job.AccountID, "step", req.Step)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return model.StepResult{}, fmt.Errorf("execute step %s: %w", req.Step, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.StepResult{}, fmt.Errorf("executor returned %d: %s", resp.StatusCode, data)
	}

	var result model.StepResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.StepResult{}, fmt.Errorf("decode step result: %w", err)
	}
	return result, nil
}
