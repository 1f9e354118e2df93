package definitions

import (
	"fmt"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// ValidationError describes one structural problem in a definition file.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every structural problem found in one file, so
// a single pass reports everything wrong instead of the first hit.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// validateDocument runs the structural pass over a parsed file: required
// fields present, at least one subroutine per definition, step names unique
// within their definition. Returns nil when the document is clean.
func validateDocument(doc *fileDocument) ValidationErrors {
	var errs ValidationErrors

	for i := range doc.Workflows {
		d := &doc.Workflows[i]
		prefix := fmt.Sprintf("workflows[%d]", i)
		if d.Name != "" {
			prefix = fmt.Sprintf("workflows[%d] (%s)", i, d.Name)
		}

		if strings.TrimSpace(d.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   prefix + ".name",
				Code:    core.CodeMissingName,
				Message: "name is required",
			})
		}
		if strings.TrimSpace(d.Description) == "" {
			errs = append(errs, ValidationError{
				Field:   prefix + ".description",
				Code:    core.CodeMissingDescription,
				Message: "description is required",
			})
		}
		if len(d.Subroutines) == 0 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".subroutines",
				Code:    core.CodeEmptySteps,
				Message: "at least one subroutine is required",
			})
			continue
		}

		seen := make(map[string]struct{}, len(d.Subroutines))
		for j, s := range d.Subroutines {
			stepPrefix := fmt.Sprintf("%s.subroutines[%d]", prefix, j)
			if strings.TrimSpace(s.Name) == "" {
				errs = append(errs, ValidationError{
					Field:   stepPrefix + ".name",
					Code:    core.CodeMissingStepName,
					Message: "name is required",
				})
			} else if _, dup := seen[s.Name]; dup {
				errs = append(errs, ValidationError{
					Field:   stepPrefix + ".name",
					Code:    core.CodeMissingStepName,
					Message: fmt.Sprintf("duplicate step name %q", s.Name),
				})
			} else {
				seen[s.Name] = struct{}{}
			}
			if strings.TrimSpace(s.PromptFile) == "" {
				errs = append(errs, ValidationError{
					Field:   stepPrefix + ".prompt_file",
					Code:    core.CodeMissingPromptFile,
					Message: "prompt_file is required",
				})
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
