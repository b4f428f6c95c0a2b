package storage

import (
	"context"
	"time"
)

// DataSharing is the operator's tri-state consent to transmit results.
type DataSharing int

const (
	SharingUnset DataSharing = iota
	SharingEnabled
	SharingDisabled
)

func (d DataSharing) String() string {
	switch d {
	case SharingEnabled:
		return "enabled"
	case SharingDisabled:
		return "disabled"
	default:
		return "unset"
	}
}

// Local provides typed access to the agent-wide keys.
type Local struct {
	store Store
	now   func() time.Time
}

func NewLocal(store Store) *Local {
	return &Local{store: store, now: time.Now}
}

// Store exposes the underlying store for components owning other keys.
func (l *Local) Store() Store {
	return l.store
}

// Install writes first-run defaults unless installDate is already present.
// It reports whether this call performed the installation.
func (l *Local) Install(ctx context.Context, defaultConfig any) (bool, error) {
	var installed string
	err := l.store.Get(ctx, KeyInstallDate, &installed)
	if err == nil {
		return false, nil
	}
	if !IsNotFound(err) {
		return false, err
	}

	if err := l.store.Set(ctx, KeyDataSharing, nil); err != nil {
		return false, err
	}
	if err := l.store.Set(ctx, KeyAuditConfig, defaultConfig); err != nil {
		return false, err
	}
	if err := l.store.Set(ctx, KeyRetryQueue, []any{}); err != nil {
		return false, err
	}
	if err := l.store.Set(ctx, KeyInstallDate, l.now().UTC()); err != nil {
		return false, err
	}
	return true, nil
}

// DataSharing reads the consent. A missing key or JSON null is unset.
func (l *Local) DataSharing(ctx context.Context) (DataSharing, error) {
	var v *bool
	if err := l.store.Get(ctx, KeyDataSharing, &v); err != nil {
		if IsNotFound(err) {
			return SharingUnset, nil
		}
		return SharingUnset, err
	}
	switch {
	case v == nil:
		return SharingUnset, nil
	case *v:
		return SharingEnabled, nil
	default:
		return SharingDisabled, nil
	}
}

func (l *Local) SetDataSharing(ctx context.Context, enabled bool) error {
	return l.store.Set(ctx, KeyDataSharing, enabled)
}

func (l *Local) MarkAuditSent(ctx context.Context, at time.Time) error {
	return l.store.Set(ctx, KeyLastAuditSent, at.UTC())
}

// LastAuditSent returns the zero time if no audit was ever delivered.
func (l *Local) LastAuditSent(ctx context.Context) (time.Time, error) {
	return l.timeAt(ctx, KeyLastAuditSent)
}

func (l *Local) InstallDate(ctx context.Context) (time.Time, error) {
	return l.timeAt(ctx, KeyInstallDate)
}

func (l *Local) timeAt(ctx context.Context, key string) (time.Time, error) {
	var t time.Time
	if err := l.store.Get(ctx, key, &t); err != nil {
		if IsNotFound(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return t, nil
}
