package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrForbidden          = errors.New("auth: permission denied")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrLeafComponent      = errors.New("auth: cannot add or remove child of a leaf component")
	ErrReferenceNotFound  = errors.New("auth: referenced component not found")
	ErrBusinessRule       = errors.New("auth: business rule violation")
	ErrResourceExhausted  = errors.New("auth: resource exhausted")
	ErrStoreFailure       = errors.New("auth: store failure")
)

// FamilyInUseError reports a family that cannot be deleted while users hold it.
type FamilyInUseError struct {
	Family string
	Users  []string
}

func (e *FamilyInUseError) Error() string {
	return fmt.Sprintf("%v: family %q is assigned to users: %s", ErrBusinessRule, e.Family, strings.Join(e.Users, ", "))
}

func (e *FamilyInUseError) Unwrap() error { return ErrBusinessRule }
