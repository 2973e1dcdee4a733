package cmd

import "strings"

// Error is a failure reported to the person running the command. main prints
// it without the "Error:" prefix it adds to other errors.
type Error struct {
	// Cause is a short description of what failed.
	Cause string
	// OriginalError is printed under Cause when set.
	OriginalError error
	// Suggestion tells the user how to fix the problem, in full sentences.
	Suggestion string
}

func (e Error) Error() string {
	if e.Cause == "" && e.OriginalError == nil {
		return e.Suggestion
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(e.Cause)
	if e.OriginalError != nil {
		sb.WriteString("\n")
		sb.WriteString(e.OriginalError.Error())
	}
	if e.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString(e.Suggestion)
	}
	return sb.String()
}

func (e Error) Unwrap() error {
	return e.OriginalError
}
