package enhance

import (
	"time"

	"drisya/internal/providers/image"
)

// Method records which provider operation produced a result.
type Method string

const (
	MethodEdit     Method = "edit"
	MethodGenerate Method = "generate"
)

// Request is one enhancement unit. Exactly one of SourceImage and SourcePath
// is normally set; when both are empty the orchestrator generates from the
// prompt alone.
type Request struct {
	ID          string
	SourceImage []byte
	SourcePath  string
	Filename    string
	Prompt      string
	TemplateID  string
	Options     Options
}

// Options are per-request rendering and routing choices.
type Options struct {
	Size    string
	Quality image.Quality
	// Blurred marks a source photo the user flagged as out of focus; the
	// prompt asks the provider to sharpen it.
	Blurred bool
	// Providers overrides the orchestrator's default preference order.
	Providers []string
}

// Result is the single outcome of a Request. Exactly one of Success and
// Failure is non-nil.
type Result struct {
	RequestID string   `json:"request_id"`
	Success   *Success `json:"success,omitempty"`
	Failure   *Failure `json:"failure,omitempty"`
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Success != nil }

// Success describes a stored enhanced image and how it was produced.
type Success struct {
	StoredRef     string        `json:"stored_ref"`
	Size          int64         `json:"size"`
	MIME          string        `json:"mime"`
	SHA256        string        `json:"sha256"`
	Provider      string        `json:"provider"`
	Method        Method        `json:"method"`
	CostEstimate  float64       `json:"cost_estimate"`
	Attempts      int           `json:"attempts"`
	Elapsed       time.Duration `json:"elapsed"`
	RevisedPrompt string        `json:"revised_prompt,omitempty"`
}

// ElapsedMillis is the wall time of the request in milliseconds.
func (s Success) ElapsedMillis() int64 { return s.Elapsed.Milliseconds() }

// Failure is a classified, human-readable failure.
type Failure struct {
	Kind ErrorKind `json:"kind"`
	// Cause is the classification of the last underlying error when Kind
	// summarizes several (AllProvidersExhausted).
	Cause    ErrorKind     `json:"cause,omitempty"`
	Message  string        `json:"message"`
	Hints    []string      `json:"hints,omitempty"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
	Tried    []Attempt     `json:"tried,omitempty"`
}

// Attempt records one provider/method leg of the fallback chain.
type Attempt struct {
	Provider string    `json:"provider"`
	Method   Method    `json:"method"`
	Attempts int       `json:"attempts"`
	Kind     ErrorKind `json:"kind"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message"`
}
