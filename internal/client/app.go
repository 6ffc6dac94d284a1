package client

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hearthkin/questlink/internal/cache"
	"github.com/hearthkin/questlink/internal/config"
	"github.com/hearthkin/questlink/internal/database"
	"github.com/hearthkin/questlink/internal/kv"
	"github.com/hearthkin/questlink/internal/local"
	"github.com/hearthkin/questlink/internal/queue"
	"github.com/hearthkin/questlink/internal/remote"
	"github.com/hearthkin/questlink/internal/transport"
)

// Mode names how operations execute for the lifetime of the process.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// App wires one device's service stack. In local mode only the database and
// the local service exist; in remote mode the transport client, response
// cache, and offline queue are attached.
type App struct {
	Service Service
	Mode    Mode

	db     *sql.DB
	store  *kv.Store
	tc     *transport.Client
	queue  *queue.Queue
	logger *slog.Logger
}

// New opens the device database and picks the execution mode. Sync enabled
// with an unusable server URL downgrades to local mode with a warning
// rather than failing startup.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := kv.New(db)

	app := &App{db: db, store: store, logger: logger}

	if !cfg.Sync.Enabled {
		app.Mode = ModeLocal
		app.Service = local.New(store, logger)
		return app, nil
	}

	if !usableURL(cfg.Sync.ServerURL) {
		logger.Warn("sync enabled but server url is unusable; running local-only",
			"server_url", cfg.Sync.ServerURL)
		app.Mode = ModeLocal
		app.Service = local.New(store, logger)
		return app, nil
	}

	tc := transport.New(cfg.Sync.ServerURL, cache.New(store), logger)
	q := queue.New(store, queue.SenderFunc(tc.Send), tc.Online, transport.IsTransient, logger)
	tc.SetQueuer(q)
	// Regained connectivity drains deferred writes in the background.
	tc.OnOnline(func() { go q.Flush(context.Background()) })

	app.Mode = ModeRemote
	app.tc = tc
	app.queue = q
	app.Service = remote.New(tc, cfg.Sync.ReadTTL(), logger)
	return app, nil
}

func usableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// KV returns the device's record store; used by the archive commands.
func (a *App) KV() *kv.Store { return a.store }

// Transport returns the relay client, or nil in local mode.
func (a *App) Transport() *transport.Client { return a.tc }

// Queue returns the offline queue, or nil in local mode.
func (a *App) Queue() *queue.Queue { return a.queue }

// Flush probes connectivity and replays any deferred writes. In local mode
// it reports an empty result.
func (a *App) Flush(ctx context.Context) (queue.Result, error) {
	if a.Mode != ModeRemote {
		return queue.Result{}, nil
	}
	a.tc.SetOnline(a.tc.Probe(ctx))
	return a.queue.Flush(ctx)
}

func (a *App) Close() error {
	return a.db.Close()
}
