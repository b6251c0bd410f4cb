package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	appErr "pairprep/pkg/errors"
)

// SandboxFile is one source file shipped to the execution sandbox.
type SandboxFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ExecuteRequest is the sandbox execution contract. Timeouts are enforced
// sandbox-side, in milliseconds.
type ExecuteRequest struct {
	Language       string        `json:"language"`
	Version        string        `json:"version"`
	Files          []SandboxFile `json:"files"`
	Stdin          string        `json:"stdin"`
	CompileTimeout int           `json:"compile_timeout"`
	RunTimeout     int           `json:"run_timeout"`
}

// StageResult is one execution stage's outcome. Some sandbox builds report
// stdout under `output` instead of `stdout`.
type StageResult struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Output string `json:"output"`
	Stderr string `json:"stderr"`
}

// CombinedOutput returns whichever stdout field the sandbox populated.
func (r StageResult) CombinedOutput() string {
	if r.Stdout != "" {
		return r.Stdout
	}
	return r.Output
}

// ExecuteResponse is the sandbox response; Compile is absent for
// interpreted languages.
type ExecuteResponse struct {
	Compile *StageResult `json:"compile,omitempty"`
	Run     StageResult  `json:"run"`
}

// SandboxClient dispatches harnesses to the external execution sandbox.
type SandboxClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSandboxClient creates a sandbox client.
func NewSandboxClient(baseURL string, timeout time.Duration) *SandboxClient {
	return &SandboxClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Execute runs one request against the sandbox.
func (c *SandboxClient) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	var out ExecuteResponse
	body, err := json.Marshal(req)
	if err != nil {
		return out, appErr.Wrap(err, appErr.InvalidParams)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/execute", bytes.NewReader(body))
	if err != nil {
		return out, appErr.SandboxError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return out, appErr.SandboxError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, appErr.SandboxError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, appErr.Newf(appErr.SandboxUnavailable, "sandbox returned %d", resp.StatusCode).
			WithDetail("body", string(data))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, appErr.Wrapf(err, appErr.ResponseInvalid, "decode sandbox response failed")
	}
	return out, nil
}
