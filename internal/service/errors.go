package service

import (
	"errors"
	"fmt"
	"time"
)

// User-facing guidance strings for the normal-but-empty outcomes. These are
// successful results, not errors.
const (
	GuidanceEmptyQuestion = "Please enter a question"
	GuidanceNoDocuments   = "Please load documents first"
	FallbackNoRelevant    = "I could not find relevant information in your documents to answer that question. Try rephrasing it, or upload a document that covers the topic."
)

// RateLimitError reports that the trailing-window query budget is spent.
// It is retryable later; the pipeline itself never retries.
type RateLimitError struct {
	Limit  int
	Window time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("You have reached the limit of %d questions per %s. Please try again later.", e.Limit, e.Window)
}

// errorMessage converts any pipeline error into the single user-facing
// string the boundary returns; callers of Ask never see a raw error.
func errorMessage(err error) string {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Error()
	}
	return fmt.Sprintf("Error: %s", err.Error())
}
