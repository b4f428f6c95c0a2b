package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"innexbot/internal/audit"
	"innexbot/internal/client"
	"innexbot/internal/delivery"
	"innexbot/internal/platform/logger"
	platformredis "innexbot/internal/platform/redis"
	"innexbot/internal/platform/tracing"
	"innexbot/internal/storage"
	"innexbot/pkg/platform/circuit"
)

const redisKeyPrefix = "innexbot:agent:"

// agent bundles the dependencies commands share.
type agent struct {
	logger   *slog.Logger
	store    storage.Store
	local    *storage.Local
	client   *client.Client
	pipeline *delivery.Pipeline
	remote   bool
	closers  []func() error
}

func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	return logger.NewWithWriter(w, level, "text")
}

// openAgent connects to the state backend, installs first-run defaults and
// builds the delivery pipeline. extra options are applied to the pipeline
// after the defaults.
func openAgent(ctx context.Context, opts *RootOptions, logOut io.Writer, extra ...delivery.Option) (*agent, error) {
	a := &agent{logger: newLogger(opts, logOut)}

	shutdown, err := tracing.Init(ctx, "innexbot-agent", audit.ExtensionVersion, opts.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return shutdown(context.WithoutCancel(ctx)) })

	if err := a.openStore(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.local = storage.NewLocal(a.store)
	installed, err := a.local.Install(ctx, audit.DefaultChecklist())
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if installed {
		a.logger.InfoContext(ctx, "agent state initialised")
	}

	a.client = newClient(opts)
	a.remote = opts.APIKey != ""
	pipelineOpts := append([]delivery.Option{
		delivery.WithState(a.local),
		delivery.WithBreaker(circuit.New("collector")),
		delivery.WithLogger(a.logger),
	}, extra...)
	a.pipeline = delivery.New(a.client, delivery.NewQueue(a.store), pipelineOpts...)
	return a, nil
}

func (a *agent) openStore(ctx context.Context, opts *RootOptions) error {
	switch {
	case opts.RedisURL != "":
		cfg := opts.redis
		cfg.URL = opts.RedisURL
		rc, err := platformredis.New(ctx, cfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rc.Close)
		a.store = storage.NewRedisStore(rc.Client, storage.WithKeyPrefix(redisKeyPrefix+opts.ExtensionID+":"))
		a.logger.DebugContext(ctx, "using redis agent state")
	case opts.StatePath == MemoryState:
		a.store = storage.NewMemoryStore()
	default:
		sq, err := storage.OpenSQLite(ctx, opts.StatePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sq.Close)
		a.store = sq
		a.logger.DebugContext(ctx, "using sqlite agent state", "path", opts.StatePath)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *agent) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
