package reading

import "fmt"

// ValidationError reports a malformed ingestion payload.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// StorageError wraps a database failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s readings: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
