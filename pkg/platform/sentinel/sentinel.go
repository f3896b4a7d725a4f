package sentinel

import "errors"

// Store-level facts. Stores return these (optionally wrapped) and services
// translate them into domain errors:
//   - ErrNotFound: no record with that key, or it is soft-deleted where the
//     caller asked for active records only
//   - ErrConflict: a conditional write lost against a concurrent writer
//   - ErrInvalidState: a guarded write found the record in another state
//   - ErrUnavailable: backend temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
