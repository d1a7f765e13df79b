package felicity_modbus

import (
	"errors"
	"fmt"
)

var (
	ErrFieldNotFound = errors.New("felicity: field not found")
	ErrNormalization = errors.New("felicity: normalization failed")
	ErrRead          = errors.New("felicity: register read failed")
	ErrWrite         = errors.New("felicity: register write failed")
)

type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("felicity: field %q not found in register map", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrFieldNotFound
}

// NormalizationError means the catalog and the normalizer disagree about a field.
type NormalizationError struct {
	Name string
	Raw  int
	Err  error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("felicity: cannot normalize %s=%d: %v", e.Name, e.Raw, e.Err)
}

func (e *NormalizationError) Is(target error) bool {
	return target == ErrNormalization
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// ReadError is returned once every retry attempt of a read has failed.
// Err holds the last transport error.
type ReadError struct {
	Name     string
	Address  uint16
	Attempts int
	Err      error
}

func (e *ReadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("felicity: read %s (0x%04X) failed after %d attempts: %v", e.Name, e.Address, e.Attempts, e.Err)
	}
	return fmt.Sprintf("felicity: read 0x%04X failed after %d attempts: %v", e.Address, e.Attempts, e.Err)
}

func (e *ReadError) Is(target error) bool {
	return target == ErrRead
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

type WriteError struct {
	Address uint16
	Value   uint16
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("felicity: write 0x%04X=%d failed: %v", e.Address, e.Value, e.Err)
}

func (e *WriteError) Is(target error) bool {
	return target == ErrWrite
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
