package types

import (
	"errors"
	"fmt"
)

// ErrorType is the category of a pipeline error.
type ErrorType string

const (
	ErrorTypeEmbedding  ErrorType = "embedding_request"
	ErrorTypeRetrieval  ErrorType = "retrieval"
	ErrorTypeGeneration ErrorType = "generation"
	ErrorTypeEvaluation ErrorType = "evaluation"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrMissingCredentials  = errors.New("missing credentials")
	ErrEmptyQuery          = errors.New("query cannot be empty")
	ErrInvalidLimit        = errors.New("limit must be greater than zero")
)

// PipelineError is a categorized error raised by one of the pipeline stages.
type PipelineError struct {
	Type     ErrorType
	Provider Provider
	Message  string
	Err      error
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = fmt.Sprintf("%s (provider %s)", msg, e.Provider)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches any PipelineError of the same type.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// EmbeddingRequestError reports a failed, unauthenticated or malformed embedding request.
func EmbeddingRequestError(p Provider, message string, err error) *PipelineError {
	return &PipelineError{Type: ErrorTypeEmbedding, Provider: p, Message: message, Err: err}
}

// RetrievalError reports a store failure or an unusable backend selector.
func RetrievalError(message string, err error) *PipelineError {
	return &PipelineError{Type: ErrorTypeRetrieval, Message: message, Err: err}
}

// GenerationError reports a chat completion that failed or produced no usable answer.
func GenerationError(message string, err error) *PipelineError {
	return &PipelineError{Type: ErrorTypeGeneration, Message: message, Err: err}
}

// EvaluationError reports a judge request that failed or returned a malformed judgement.
func EvaluationError(message string, err error) *PipelineError {
	return &PipelineError{Type: ErrorTypeEvaluation, Message: message, Err: err}
}

// Sentinels for errors.Is checks against the category only.
var (
	ErrEmbeddingRequest = &PipelineError{Type: ErrorTypeEmbedding}
	ErrRetrieval        = &PipelineError{Type: ErrorTypeRetrieval}
	ErrGeneration       = &PipelineError{Type: ErrorTypeGeneration}
	ErrEvaluation       = &PipelineError{Type: ErrorTypeEvaluation}
)

// IsEmbeddingRequestError reports whether err is, or wraps, an embedding request error.
func IsEmbeddingRequestError(err error) bool {
	return errors.Is(err, ErrEmbeddingRequest)
}

// IsRetrievalError reports whether err is, or wraps, a retrieval error.
func IsRetrievalError(err error) bool {
	return errors.Is(err, ErrRetrieval)
}

// IsGenerationError reports whether err is, or wraps, a generation error.
func IsGenerationError(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// IsEvaluationError reports whether err is, or wraps, an evaluation error.
func IsEvaluationError(err error) bool {
	return errors.Is(err, ErrEvaluation)
}
