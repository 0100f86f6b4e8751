package check

import "fmt"

// LaunchError means the automation engine could not start a browser session
type LaunchError struct {
	Engine string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s browser: %v", e.Engine, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError means the target could not be loaded (unreachable host,
// timeout, load failure)
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("failed to navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ArtifactError means the screenshot could not be captured or written
type ArtifactError struct {
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("failed to write screenshot %s: %v", e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }
