package domain

import "errors"

var (
	ErrAlreadyRunning    = errors.New("automation_already_running")
	ErrUnknownAutomation = errors.New("unknown_automation")
	ErrRunPanicked       = errors.New("automation_panicked")
)
