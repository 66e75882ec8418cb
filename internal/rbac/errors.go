package rbac

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated means the request carried no usable identity.
	ErrUnauthenticated = errors.New("rbac: unauthenticated")
	// ErrEvaluation means the effective set could not be determined.
	ErrEvaluation = errors.New("rbac: evaluation failed")
)

// DeniedError reports the permissions a caller lacked.
type DeniedError struct {
	Mode    MatchMode
	Missing []Permission
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rbac: permission denied (%s of %s)", e.Mode, strings.Join(Strings(e.Missing), ", "))
}

// SeedError reports a role whose catalog entry could not be applied.
type SeedError struct {
	Role       string
	Permission string
	Err        error
}

func (e *SeedError) Error() string {
	if e.Permission == "" {
		return fmt.Sprintf("rbac seed: role %q: %v", e.Role, e.Err)
	}
	return fmt.Sprintf("rbac seed: role %q permission %q: %v", e.Role, e.Permission, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }
