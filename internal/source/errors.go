package source

import "fmt"

// FetchError reports a failed source read. Status is zero when the response
// arrived but could not be decoded.
type FetchError struct {
	Table  string
	Status int
	Body   string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("source %s: malformed response: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("source %s: status %d: %s", e.Table, e.Status, e.Body)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
