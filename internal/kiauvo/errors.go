package kiauvo

import (
	"errors"
	"fmt"
)

var (
	ErrAuthentication = errors.New("kia: authentication failed")
	ErrNotLoggedIn    = errors.New("kia: session not established")
	ErrNoVehicles     = errors.New("kia: no vehicles on account")
)

// APIError is a non-auth failure reported by the owners API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("kia api error %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("kia api error %d (code %d)", e.Status, e.Code)
}
