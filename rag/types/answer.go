package types

const (
	// NoContextAnswer is returned when retrieval finds nothing to ground an answer on.
	NoContextAnswer = "I apologize, but I couldn't find any relevant information to answer your question accurately."

	// ErrorAnswerPrefix starts every answer produced for an internal failure.
	ErrorAnswerPrefix = "I apologize, but I encountered an error while generating the answer: "

	// ApologyPrefix is shared by both fallback answers.
	ApologyPrefix = "I apologize"
)

// Outcome discriminates the three observable results of answer generation.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeNoContext Outcome = "no_context"
	OutcomeError     Outcome = "error"
)

// Answer is the result of answer generation. Text is always populated.
type Answer struct {
	Outcome    Outcome  `json:"outcome"`
	Text       string   `json:"answer"`
	References []string `json:"references"`

	// Contexts holds the retrieved record contents the answer was grounded on, in retrieval order.
	Contexts []string `json:"contexts,omitempty"`

	// Detail carries the failure description when Outcome is OutcomeError.
	Detail string `json:"detail,omitempty"`
	// Err is the failure behind OutcomeError.
	Err error `json:"-"`
}

// NewAnswer builds a successful answer.
func NewAnswer(text string, references, contexts []string) Answer {
	return Answer{
		Outcome:    OutcomeOK,
		Text:       text,
		References: references,
		Contexts:   contexts,
	}
}

// NoContext builds the answer returned when nothing relevant was retrieved.
func NoContext() Answer {
	return Answer{
		Outcome:    OutcomeNoContext,
		Text:       NoContextAnswer,
		References: []string{},
	}
}

// Failed builds the user-safe answer for an internal failure.
func Failed(err error) Answer {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return Answer{
		Outcome:    OutcomeError,
		Text:       ErrorAnswerPrefix + detail,
		References: []string{},
		Detail:     detail,
		Err:        err,
	}
}

// OK reports whether the answer was generated from retrieved context.
func (a Answer) OK() bool {
	return a.Outcome == OutcomeOK
}
