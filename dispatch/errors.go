package dispatch

import "fmt"

// TransportError reports that the stream itself failed: the connection
// dropped or the service call behind it errored. It is the only failure
// Dispatch returns; everything else becomes a notification.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("run event stream failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
