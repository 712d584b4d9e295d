package chunkdb

import "fmt"

// StorageError wraps a persistence I/O failure. The flush engine logs it and
// retries on the next cycle; it is never surfaced to clients and never drops
// in-memory state.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
