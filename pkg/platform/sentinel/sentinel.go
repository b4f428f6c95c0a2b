package sentinel

import "errors"

// Infrastructure facts returned (optionally wrapped) by stores, queues and
// transports. Callers branch on them with errors.Is and translate them into
// coded errors from pkg/domain-errors where a response is needed.
//
//   - ErrNotFound: key or record does not exist
//   - ErrConflict: record with the same identity already stored
//   - ErrExpired: persisted state is older than its retention window
//   - ErrInvalidState: entity in wrong state for the requested operation
//   - ErrUnavailable: backend or peer temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
