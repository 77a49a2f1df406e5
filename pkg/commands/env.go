package commands

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/client"
	"tableflip.dev/sandlab/pkg/commands/options"
	"tableflip.dev/sandlab/pkg/coordinator"
	"tableflip.dev/sandlab/pkg/logging"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

// env is what a command needs to reach the records of one workflow: either a
// local store or a remote storage engine.
type env struct {
	settings *store.Settings
	logger   *zap.Logger
	workflow *workflow.Workflow

	// local is nil when a remote storage engine is configured.
	local  *app.Service
	remote coordinator.Remote

	persistence store.Persistence
}

var errNeedsLocal = errors.New("this command needs the local store, unset --server")

// openEnv loads the configuration, applies the persistent flags and opens the
// store or the client. needLocal refuses remote storage engines.
func openEnv(lo *options.LedgerOptions, needLocal bool) (*env, error) {
	settings, err := store.LoadConfig()
	if err != nil {
		return nil, err
	}
	if lo.Workflow != "" {
		settings.Workflow = lo.Workflow
	}
	if lo.Server != "" {
		settings.Server = lo.Server
	}

	logger, err := logging.New(lo.Verbose)
	if err != nil {
		return nil, err
	}
	wf, err := workflow.Lookup(settings.Workflow)
	if err != nil {
		return nil, err
	}

	e := &env{settings: settings, logger: logger, workflow: wf}
	if settings.Server != "" {
		if needLocal {
			return nil, errNeedsLocal
		}
		logger.Debug("using remote storage engine", zap.String("server", settings.Server))
		e.remote = client.New(settings.Server, wf.Name, logger)
		return e, nil
	}

	p, err := store.Load(settings, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store at %s: %w", settings.Backend(), settings.BasePath(), err)
	}
	e.persistence = p
	e.local = &app.Service{Persistence: p, Workflow: wf, Logger: logger}
	e.remote = e.local
	return e, nil
}

func (e *env) Close() error {
	_ = e.logger.Sync()
	if e.persistence != nil {
		return e.persistence.Close()
	}
	return nil
}
