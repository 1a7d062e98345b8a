package doctor

import (
	"context"
	"fmt"

	"github.com/hay-kot/deepguard/internal/core/prediction"
)

// StatusChecker reports the detection model status.
type StatusChecker interface {
	Status(ctx context.Context) prediction.ModelStatus
}

// APICheck verifies the detection API is reachable and the model is loaded.
type APICheck struct {
	checker StatusChecker
	baseURL string
}

// NewAPICheck creates a new detection API check.
func NewAPICheck(checker StatusChecker, baseURL string) *APICheck {
	return &APICheck{checker: checker, baseURL: baseURL}
}

func (c *APICheck) Name() string {
	return "Detection API"
}

func (c *APICheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	st := c.checker.Status(ctx)
	if !st.Reachable {
		result.add("Reachable", StatusFail, fmt.Sprintf("no response from %s; make sure the backend is running", c.baseURL))
		return result
	}
	result.add("Reachable", StatusPass, c.baseURL)

	if !st.Exists {
		result.add("Model file", StatusFail, "model file not found on the server")
	} else {
		result.add("Model file", StatusPass, st.ModelPath)
	}

	if !st.Loaded {
		result.add("Model loaded", StatusWarn, "model is not loaded yet")
	} else {
		result.add("Model loaded", StatusPass, "")
	}

	return result
}
