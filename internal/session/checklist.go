package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"innexbot/internal/audit"
	"innexbot/internal/messaging"
	"innexbot/internal/storage"
)

// ChecklistSource is one place a checklist may come from.
type ChecklistSource struct {
	Name    string
	Timeout time.Duration
	Load    func(ctx context.Context) (audit.Checklist, error)
}

// ChecklistFetcher serves the operator-managed checklist.
type ChecklistFetcher interface {
	Checklist(ctx context.Context) (audit.Checklist, error)
}

// RemoteChecklist fetches from the collector and caches a valid answer
// under the remote config key.
func RemoteChecklist(f ChecklistFetcher, cache storage.Store) ChecklistSource {
	return ChecklistSource{
		Name:    "remote",
		Timeout: messaging.NetworkTimeout,
		Load: func(ctx context.Context) (audit.Checklist, error) {
			list, err := f.Checklist(ctx)
			if err != nil {
				return nil, err
			}
			if cache != nil && list.Validate() == nil {
				// Caching is best effort.
				_ = cache.Set(ctx, storage.KeyRemoteConfig, list)
			}
			return list, nil
		},
	}
}

// StoredChecklist reads a checklist persisted under key.
func StoredChecklist(store storage.Store, key string) ChecklistSource {
	return ChecklistSource{
		Name:    key,
		Timeout: messaging.StorageTimeout,
		Load: func(ctx context.Context) (audit.Checklist, error) {
			var list audit.Checklist
			if err := store.Get(ctx, key, &list); err != nil {
				return nil, err
			}
			return list, nil
		},
	}
}

// FileChecklist reads a YAML checklist override.
func FileChecklist(path string) ChecklistSource {
	return ChecklistSource{
		Name: path,
		Load: func(context.Context) (audit.Checklist, error) {
			return LoadChecklistFile(path)
		},
	}
}

// LoadChecklistFile parses a YAML file holding either a list of items or a
// mapping with an "events" list.
func LoadChecklistFile(path string) (audit.Checklist, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checklist: %w", err)
	}
	return ParseChecklist(raw)
}

func ParseChecklist(raw []byte) (audit.Checklist, error) {
	var list audit.Checklist
	if err := yaml.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var doc struct {
		Events audit.Checklist `yaml:"events"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse checklist: %w", err)
	}
	return doc.Events, nil
}

// ResolveChecklist returns the first valid checklist among sources, in
// order, and the name of the source it came from. Failing or invalid
// sources are logged and skipped; the default checklist is the last resort.
func ResolveChecklist(ctx context.Context, logger *slog.Logger, sources ...ChecklistSource) (audit.Checklist, string) {
	for _, src := range sources {
		list, err := loadSource(ctx, src)
		if err == nil {
			err = list.Validate()
		}
		if err != nil {
			if logger != nil && !storage.IsNotFound(err) {
				logger.WarnContext(ctx, "checklist source unusable", "source", src.Name, "error", err)
			}
			continue
		}
		return list, src.Name
	}
	return audit.DefaultChecklist(), "default"
}

func loadSource(ctx context.Context, src ChecklistSource) (audit.Checklist, error) {
	if src.Timeout <= 0 {
		return src.Load(ctx)
	}
	reply := messaging.Call(ctx, src.Timeout, src.Load)
	return reply.Value, reply.Err
}
