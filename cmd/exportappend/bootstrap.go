package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/exportappend/internal/importer"
	"github.com/JonMunkholm/exportappend/internal/store"
	_ "github.com/JonMunkholm/exportappend/internal/store/all" // register backends
)

// openStore connects to the configured database. It returns a nil store and
// no error when the database settings are incomplete, so imports report
// ErrNotConfigured instead of the process failing to start.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	db := a.cfg.Database
	if !db.Configured() {
		slog.Warn("database settings are not configured", "driver", db.Driver)
		return nil, nil
	}

	// Every backend pings inside Open.
	openCtx := ctx
	if db.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, db.ConnectTimeout)
		defer cancel()
	}
	st, err := store.Open(openCtx, db.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s store at %s: %w", db.Driver, db.Host, err)
	}

	slog.Info("connected to database", "driver", db.Driver, "host", db.Host, "name", db.Name)
	return st, nil
}

// pipeline builds an import pipeline over st, which may be nil.
func (a *app) pipeline(st store.Store, observer importer.Observer) (*importer.Pipeline, error) {
	enc, err := importer.LookupEncoding(a.cfg.Import.Encoding)
	if err != nil {
		return nil, err
	}

	var target importer.Target
	if st != nil {
		target = st
	}
	return importer.NewPipeline(target, importer.Options{
		BatchSize:   a.cfg.Import.BatchSize,
		MaxFileSize: a.cfg.Import.MaxFileSize,
		Encoding:    enc,
		Observer:    observer,
	}), nil
}
