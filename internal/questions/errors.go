package questions

import "errors"

var (
	// ErrNotFound is returned when a question does not exist.
	ErrNotFound = errors.New("question not found")
	// ErrInvalidOption is returned when a vote targets an option index
	// outside the question's option range.
	ErrInvalidOption = errors.New("invalid option for this question")
	// ErrAlreadyVoted is returned when a voter has already voted on the
	// question. Votes are idempotent per voter: a repeat never changes
	// the counts.
	ErrAlreadyVoted = errors.New("you have already voted on this question")
)

// ValidationError rejects a create request before it reaches storage.
// It is recoverable: the caller can fix the input and resubmit.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
