// Package prediction defines the classification returned by the detection API and the
// errors surfaced when a prediction cannot be obtained.
package prediction

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Class is the binary label returned by the remote model.
type Class string

const (
	ClassReal Class = "Real"
	ClassFake Class = "Fake"
)

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	return c == ClassReal || c == ClassFake
}

// IsReal returns true if the image was classified as authentic.
func (c Class) IsReal() bool {
	return c == ClassReal
}

// Result is a single classification. It is produced by the remote API only and is never
// computed locally.
type Result struct {
	Class      Class    `json:"class"`
	Confidence float64  `json:"confidence"`
	RawScore   *float64 `json:"raw_score,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
}

// ModelStatus is the body of GET /api/model-status.
type ModelStatus struct {
	Loaded    bool   `json:"loaded"`
	Exists    bool   `json:"exists"`
	ModelPath string `json:"model_path,omitempty"`

	// Reachable is false when the status endpoint could not be queried at all.
	Reachable bool `json:"-"`
}

// Online returns true when the model is both present and loaded. An unreachable API is
// offline, not an error.
func (s ModelStatus) Online() bool {
	return s.Reachable && s.Loaded && s.Exists
}

// Response is the JSON envelope returned by POST /api/predict.
type Response struct {
	Success    bool            `json:"success"`
	Prediction json.RawMessage `json:"prediction,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// wireResult mirrors Result with pointer fields so that missing values can be told apart
// from zero values.
type wireResult struct {
	Class      *string  `json:"class"`
	Confidence *float64 `json:"confidence"`
	RawScore   *float64 `json:"raw_score"`
	Filename   string   `json:"filename"`
	ImageURL   string   `json:"image_url"`
}

// Result converts the envelope into a Result or one of the typed errors.
//
//   - success:false yields *APIError with the server message, or FallbackMessage.
//   - success:true without a usable prediction yields *MalformedResponseError.
func (r Response) Result() (Result, error) {
	if !r.Success {
		return Result{}, NewAPIError(r.Error, 0)
	}

	raw := strings.TrimSpace(string(r.Prediction))
	if raw == "" || raw == "null" {
		return Result{}, &MalformedResponseError{Reason: "prediction missing"}
	}

	var w wireResult
	if err := json.Unmarshal(r.Prediction, &w); err != nil {
		return Result{}, &MalformedResponseError{Reason: "prediction is not an object", Err: err}
	}

	if w.Class == nil {
		return Result{}, &MalformedResponseError{Reason: "prediction.class missing"}
	}

	class := Class(*w.Class)
	if !class.Valid() {
		return Result{}, &MalformedResponseError{Reason: fmt.Sprintf("unknown class %q", *w.Class)}
	}

	if w.Confidence == nil {
		return Result{}, &MalformedResponseError{Reason: "prediction.confidence missing"}
	}

	if *w.Confidence < 0 || *w.Confidence > 100 {
		return Result{}, &MalformedResponseError{Reason: fmt.Sprintf("confidence %v outside 0-100", *w.Confidence)}
	}

	return Result{
		Class:      class,
		Confidence: *w.Confidence,
		RawScore:   w.RawScore,
		Filename:   w.Filename,
		ImageURL:   w.ImageURL,
	}, nil
}
