package provision

import (
	"errors"
	"fmt"
)

// Error kinds reported by a run. Match them with errors.Is.
var (
	ErrFetch    = errors.New("fetch failed")
	ErrUpload   = errors.New("upload failed")
	ErrCommand  = errors.New("command failed")
	ErrRegister = errors.New("register failed")
)

// Step identifies where in a template's pipeline a failure happened.
type Step string

const (
	StepFetch    Step = "fetch"
	StepUnpack   Step = "unpack"
	StepUpload   Step = "upload"
	StepCommand  Step = "command"
	StepRegister Step = "register"
)

// String returns the string representation of the step.
func (s Step) String() string {
	return string(s)
}

// Kind returns the error kind a failure at this step is reported as.
func (s Step) Kind() error {
	switch s {
	case StepFetch, StepUnpack:
		return ErrFetch
	case StepUpload:
		return ErrUpload
	case StepCommand:
		return ErrCommand
	case StepRegister:
		return ErrRegister
	default:
		return nil
	}
}

// StepError reports the template and step that aborted a run.
type StepError struct {
	VMID int
	Name string
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	what := e.Step.String()
	if e.Step == StepUnpack {
		what = "fetch (unpack)"
	}
	return fmt.Sprintf("template %d (%s): %s failed: %v", e.VMID, e.Name, what, e.Err)
}

// Unwrap exposes both the error kind and the underlying cause.
func (e *StepError) Unwrap() []error {
	if kind := e.Step.Kind(); kind != nil {
		return []error{kind, e.Err}
	}
	return []error{e.Err}
}
