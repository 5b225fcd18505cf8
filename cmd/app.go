package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/aasubsidy/subsidyctl/internal/utils"
	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/aasubsidy/subsidyctl/pkg/dispatch"
	"github.com/aasubsidy/subsidyctl/pkg/ledger"
	"github.com/aasubsidy/subsidyctl/pkg/page"
	"github.com/aasubsidy/subsidyctl/pkg/remote"
	"github.com/aasubsidy/subsidyctl/pkg/session"
	"github.com/aasubsidy/subsidyctl/pkg/storage"
	"github.com/aasubsidy/subsidyctl/pkg/table"
	"github.com/aasubsidy/subsidyctl/pkg/viewstate"
	"github.com/aasubsidy/subsidyctl/pkg/whttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds everything one command invocation needs.
type app struct {
	cfg    config.Config
	remote *remote.Client
	db     *storage.DB
	lock   *utils.DBLock

	prompt      *prompter
	metricsPath string
}

// newClient loads the configuration and builds the remote client only.
func newClient(cmd *cobra.Command) (config.Config, *remote.Client, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return cfg, nil, fmt.Errorf("reading config: %w", err)
	}
	if cfg.BaseURL == "" {
		return cfg, nil, common.NewUserError("server.base_url is not set; add it to ~/.subsidyctl.yaml or pass --base-url", common.ErrMissingConfig)
	}

	proxy, _ := cmd.Flags().GetString("proxy")
	h, err := whttp.NewClient(whttp.Options{
		BaseURL:       cfg.BaseURL,
		SessionCookie: cfg.SessionCookie,
		CSRFCookie:    cfg.CSRFCookie,
		Proxy:         proxy,
		Retries:       cfg.Retries,
		Timeout:       cfg.Timeout,
	})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, remote.New(h, cfg.Endpoints), nil
}

// openLocal opens the local store under its file lock.
func openLocal() (*storage.DB, *utils.DBLock, error) {
	dbPath, err := utils.EnsureDBDir(viper.GetString("db.path"))
	if err != nil {
		return nil, nil, err
	}
	lock, err := utils.NewDBLock(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	return db, lock, nil
}

func closeLocal(db *storage.DB, lock *utils.DBLock) {
	if err := db.Close(); err != nil {
		utils.Log.Debugf("closing db: %v", err)
	}
	if err := lock.Unlock(); err != nil {
		utils.Log.Debugf("%v", err)
	}
}

// newApp builds the remote client and opens the local store.
// Callers must Close the app.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, rc, err := newClient(cmd)
	if err != nil {
		return nil, err
	}
	db, lock, err := openLocal()
	if err != nil {
		return nil, err
	}

	metricsPath, _ := cmd.Flags().GetString("metrics-textfile")
	return &app{
		cfg:         cfg,
		remote:      rc,
		db:          db,
		lock:        lock,
		prompt:      newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr(), cfg.Lang),
		metricsPath: metricsPath,
	}, nil
}

func (a *app) Close() {
	if a.metricsPath != "" {
		if err := dispatch.WriteTextfile(a.metricsPath); err != nil {
			utils.Log.Warnf("Could not write metrics to %s: %v", a.metricsPath, err)
		}
	}
	closeLocal(a.db, a.lock)
}

// openSession loads a page and keeps the message catalogue in sync with it.
func (a *app) openSession(ctx context.Context, path string) (*session.Session, error) {
	s := session.New(a.remote, path, utils.Log)
	if err := s.Reload(ctx); err != nil {
		return nil, common.NewUserError(fmt.Sprintf("could not load page %q", path), err)
	}
	a.prompt.lang = a.lang(s.Snapshot())
	return s, nil
}

func (a *app) lang(snap *page.Snapshot) config.Lang {
	if snap == nil {
		return a.cfg.Lang
	}
	return a.cfg.Lang.Merge(snap.Config.Lang)
}

func (a *app) record(action, target, mode string, err error) {
	rec := storage.ActionRecord{
		OccurredAt: time.Now().UTC(),
		Action:     action,
		TargetID:   target,
		Mode:       mode,
		Result:     "ok",
	}
	if err != nil {
		rec.Result = "error"
		rec.Error = err.Error()
	}
	if err := a.db.RecordAction(context.Background(), rec); err != nil {
		utils.Log.Debugf("could not record %s of %s: %v", action, target, err)
	}
}

func (a *app) onDispatchOutcome(o dispatch.Outcome) {
	dispatch.ObserveOutcome(o)
	mode := "single"
	if o.Bulk {
		mode = "bulk"
	}
	a.record(string(o.Action), o.ID, mode, o.Err)
}

func (a *app) dispatcher(s *session.Session) *dispatch.Dispatcher {
	return dispatch.New(dispatch.Options{
		Remote:      a.remote,
		Subsidies:   s,
		Reloader:    s,
		Annotator:   a.prompt,
		Lang:        a.lang(s.Snapshot()),
		Concurrency: a.cfg.Concurrency,
		Log:         utils.Log,
		OnOutcome:   a.onDispatchOutcome,
		OnBusy: func(busy bool) {
			if busy {
				utils.Log.Debug("dispatch busy")
			} else {
				utils.Log.Debug("dispatch idle")
			}
		},
	})
}

func (a *app) ledger(s *session.Session) *ledger.Ledger {
	snap := s.Snapshot()
	return ledger.New(ledger.Options{
		Source:    s,
		Remote:    a.remote,
		Reloader:  s,
		Confirmer: a.prompt,
		IsAdmin:   a.cfg.IsAdmin || snap.Config.IsAdmin,
		Lang:      a.lang(snap),
		OnOutcome: func(action string, fitID int, err error) {
			a.record(action, strconv.Itoa(fitID), "single", err)
		},
	})
}

// viewStore returns the view state store of a table. Only the contracts
// table is mirrored on the server and keeps its filters.
func (a *app) viewStore(snap *page.Snapshot, key string) *viewstate.Store {
	opts := viewstate.Options{
		TableKey: key,
		Local:    a.db,
		Log:      utils.Log,
	}
	if key == page.ContractsTable {
		opts.Remote = a.remote
		opts.Authenticated = snap.Config.IsAuthenticated
		opts.WithFilters = true
		opts.ServerPref = snap.Config.TablePref
	}
	return viewstate.New(opts)
}

// engine builds the table engine for a table of the current snapshot and
// applies its starting sort.
func (a *app) engine(ctx context.Context, snap *page.Snapshot, key string) (*table.Engine, error) {
	t, ok := snap.Tables[key]
	if !ok {
		return nil, common.NewUserError(fmt.Sprintf("the page has no %s table", key), nil)
	}
	store := a.viewStore(snap, key)
	e := table.NewEngine(t, store.Load(ctx), store)
	if err := e.Init(ctx); err != nil {
		return nil, err
	}
	return e, nil
}
