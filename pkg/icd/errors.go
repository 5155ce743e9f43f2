package icd

import "fmt"

// AuthError marks credential and token failures against the WHO API. These
// are never retriable and fail the operation that triggered them.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("who auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Retriable() bool { return false }

// ServiceError marks non-2xx responses from the WHO API itself.
type ServiceError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("who api: %v", e.Err)
	}
	return fmt.Sprintf("who api: status %d: %s", e.StatusCode, e.Body)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Retriable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}
