package questions

import (
	"fmt"
	"strings"
)

const (
	// TitleMinLen and TitleMaxLen bound the trimmed question title.
	TitleMinLen = 5
	TitleMaxLen = 200
	// OptionMaxLen bounds each trimmed option text.
	OptionMaxLen = 100
	// MinOptions and MaxOptions bound the number of non-empty options.
	MinOptions = 2
	MaxOptions = 8
)

// ValidateCreate checks a create request and returns the trimmed title and
// the trimmed non-empty options in their original order. Checks run in a
// fixed order and stop at the first failure. Empty option slots are
// discarded before any option check.
func ValidateCreate(title string, options []string) (string, []string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", nil, &ValidationError{Message: "question title is required"}
	}
	if len(title) < TitleMinLen {
		return "", nil, &ValidationError{Message: fmt.Sprintf("question title must be at least %d characters", TitleMinLen)}
	}
	if len(title) > TitleMaxLen {
		return "", nil, &ValidationError{Message: fmt.Sprintf("question title must be at most %d characters", TitleMaxLen)}
	}

	trimmed := make([]string, 0, len(options))
	for _, opt := range options {
		if t := strings.TrimSpace(opt); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	if len(trimmed) < MinOptions {
		return "", nil, &ValidationError{Message: fmt.Sprintf("at least %d options are required", MinOptions)}
	}
	if len(trimmed) > MaxOptions {
		return "", nil, &ValidationError{Message: fmt.Sprintf("at most %d options are allowed", MaxOptions)}
	}
	for i, opt := range trimmed {
		if len(opt) > OptionMaxLen {
			return "", nil, &ValidationError{Message: fmt.Sprintf("option %d must be at most %d characters", i+1, OptionMaxLen)}
		}
	}
	seen := make(map[string]bool, len(trimmed))
	for _, opt := range trimmed {
		key := strings.ToLower(opt)
		if seen[key] {
			return "", nil, &ValidationError{Message: "all options must be unique"}
		}
		seen[key] = true
	}
	return title, trimmed, nil
}
