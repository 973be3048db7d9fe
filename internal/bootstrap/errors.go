package bootstrap

import (
	"errors"
	"fmt"
)

// ErrServiceNotRunning is returned when the agent service does not report
// the expected status after being started.
var ErrServiceNotRunning = errors.New("service is not running")

// FetchError is returned when the vendor installer cannot be downloaded.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s: unexpected status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// InstallError is returned when a package or installer step fails.
type InstallError struct {
	Step   string
	Output string
	Err    error
}

func (e *InstallError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s failed: %v: %s", e.Step, e.Err, e.Output)
	}
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}
