package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pairprep/internal/platform"
	appErr "pairprep/pkg/errors"
	"pairprep/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultCompileTimeoutMs = 10000
	defaultRunTimeoutMs     = 5000
)

// AttemptRecorder persists submission attempts.
type AttemptRecorder interface {
	CreateAttempt(ctx context.Context, attempt platform.AttemptCreate) (platform.AttemptRead, error)
}

// RunResult aggregates per-case verdicts for one execution.
type RunResult struct {
	Cases   []CaseVerdict
	Passed  int
	Total   int
	Failure string // non-empty when no verdicts are available at all
}

// Orchestrator turns a question's test cases plus user code into verdicts.
type Orchestrator struct {
	sandbox  *SandboxClient
	attempts AttemptRecorder
}

// NewOrchestrator creates an orchestrator. attempts may be nil when only
// the run path is needed.
func NewOrchestrator(sandbox *SandboxClient, attempts AttemptRecorder) *Orchestrator {
	return &Orchestrator{sandbox: sandbox, attempts: attempts}
}

// Run builds the harness, executes it in the sandbox and classifies each
// test case. Sandbox failure, compile failure and a non-zero run exit each
// yield a no-verdict marker for every case with the message retained.
func (o *Orchestrator) Run(ctx context.Context, question platform.Question, lang Language, userCode string) (RunResult, error) {
	harness, err := BuildHarness(lang, question, userCode)
	if err != nil {
		return RunResult{}, err
	}

	total := len(question.TestCases)
	resp, err := o.sandbox.Execute(ctx, ExecuteRequest{
		Language:       string(harness.Language),
		Version:        harness.Version,
		Files:          []SandboxFile{{Name: harness.FileName, Content: harness.Content}},
		CompileTimeout: defaultCompileTimeoutMs,
		RunTimeout:     defaultRunTimeoutMs,
	})
	if err != nil {
		logger.Warn(ctx, "sandbox execution failed", zap.Error(err))
		return noVerdictResult(total, fmt.Sprintf("execution failed: %v", err)), nil
	}

	if resp.Compile != nil && resp.Compile.Code != 0 {
		msg := firstNonEmpty(resp.Compile.Stderr, resp.Compile.CombinedOutput(), "compilation failed")
		return noVerdictResult(total, msg), nil
	}
	if resp.Run.Code != 0 {
		msg := firstNonEmpty(resp.Run.Stderr, resp.Run.CombinedOutput(), "execution exited abnormally")
		return noVerdictResult(total, msg), nil
	}

	return o.classify(question, resp.Run.CombinedOutput(), total), nil
}

// Submit runs all cases and records the attempt. A run without verdicts is
// an error and records nothing; an attempts-service rejection surfaces as
// an error so callers never show a success summary.
func (o *Orchestrator) Submit(ctx context.Context, question platform.Question, lang Language, userCode string) (RunResult, platform.AttemptRead, error) {
	result, err := o.Run(ctx, question, lang, userCode)
	if err != nil {
		return result, platform.AttemptRead{}, err
	}
	if result.Failure != "" {
		return result, platform.AttemptRead{}, appErr.Newf(appErr.RuntimeError, "no verdict available: %s", result.Failure)
	}
	if o.attempts == nil {
		return result, platform.AttemptRead{}, appErr.New(appErr.AttemptCreateFailed).WithMessage("attempt recording is not configured")
	}

	attempt, err := o.attempts.CreateAttempt(ctx, platform.AttemptCreate{
		QuestionID:    question.ID,
		Language:      string(lang),
		SubmittedCode: userCode,
		PassedTests:   result.Passed,
		TotalTests:    result.Total,
	})
	if err != nil {
		return result, platform.AttemptRead{}, appErr.Wrap(err, appErr.AttemptCreateFailed)
	}
	return result, attempt, nil
}

// classify matches harness output records against expected outputs.
// A case without a record degrades to "no output" instead of aborting the
// run.
func (o *Orchestrator) classify(question platform.Question, stdout string, total int) RunResult {
	records := parseHarnessOutput(stdout)
	result := RunResult{Cases: make([]CaseVerdict, 0, total), Total: total}

	for i := 0; i < total; i++ {
		expected := expectedValue(question.TestCases[i].Output)
		verdict := CaseVerdict{Index: i, Expected: NormalizeValue(expected)}

		rec, ok := records[i]
		switch {
		case !ok:
			verdict.Actual = ""
			verdict.Message = "no output"
		case rec.Error != "":
			verdict.Actual = rec.Error
			verdict.Message = rec.Error
		default:
			var out interface{}
			_ = json.Unmarshal(rec.Out, &out)
			verdict.Actual = NormalizeValue(out)
			verdict.Passed = OutputsMatch(expected, out)
		}

		if verdict.Passed {
			result.Passed++
		}
		result.Cases = append(result.Cases, verdict)
	}
	return result
}

// expectedValue decodes the backend-declared expected output, keeping
// loosely formatted strings intact for the normalization oracle.
func expectedValue(raw []byte) interface{} {
	v := rawValue(raw)
	if s, ok := v.(string); ok {
		if parsed, parsedOK := ParseRelaxed(s); parsedOK {
			return parsed
		}
		return strings.TrimSpace(s)
	}
	return v
}

func noVerdictResult(total int, message string) RunResult {
	result := RunResult{Total: total, Failure: message}
	for i := 0; i < total; i++ {
		result.Cases = append(result.Cases, CaseVerdict{Index: i, NoVerdict: true, Message: message})
	}
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

