// Package storage persists the agent's local key-value state.
//
// Values are JSON documents addressed by a fixed set of keys. Backends are
// interchangeable: memory for tests, SQLite for the CLI, Redis when several
// agents share one state.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"innexbot/pkg/platform/sentinel"
)

// Keys of the persisted local state.
const (
	KeyAuditSession  = "auditSession"
	KeyRetryQueue    = "retryQueue"
	KeyDataSharing   = "dataSharing"
	KeyAuditConfig   = "auditConfig"
	KeyRemoteConfig  = "remoteAuditConfig"
	KeyLastAuditSent = "lastAuditSent"
	KeyInstallDate   = "installDate"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = fmt.Errorf("storage key %w", sentinel.ErrNotFound)

// Store is a JSON key-value store.
type Store interface {
	// Get decodes the value at key into dst, or returns ErrNotFound.
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any) error
	// Remove deletes keys; missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error
}

// IsNotFound reports whether err is a missing-key error.
func IsNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

func encode(key string, value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return raw, nil
}

func decode(key string, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
