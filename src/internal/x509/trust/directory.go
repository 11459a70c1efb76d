// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package trust

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	x509certs "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/certs"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
)

// DirectorySource serves every certificate found in a directory and can
// reload itself when the directory changes.
//
// Files that do not decode are skipped and logged.
type DirectorySource struct {
	dir    string
	source token.Source
	log    logger.Logger
	codec  *x509certs.Codec

	current  atomic.Pointer[ListSource]
	onReload func()
}

// NewDirectorySource loads dir once and returns the source.
func NewDirectorySource(dir string, source token.Source, log logger.Logger) (*DirectorySource, error) {
	d := &DirectorySource{
		dir:    dir,
		source: source,
		log:    logger.WithComponent(log, "trust"),
		codec:  x509certs.New(),
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload rescans the directory and atomically swaps the served set.
func (d *DirectorySource) Reload() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("trust: read dir %s: %w", d.dir, err)
	}

	next := NewListSource(d.source)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(d.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			d.log.Printf("skip %s: %v", path, err)
			continue
		}
		certs, err := d.codec.DecodeCertificates(data)
		if err != nil {
			d.log.Printf("skip %s: %v", path, err)
			continue
		}
		for _, c := range certs {
			next.Add(c)
		}
	}

	d.current.Store(next)
	d.log.Printf("loaded %d certificates from %s", next.Len(), d.dir)
	return nil
}

// OnReload registers fn to run after every successful reload done by
// [DirectorySource.Watch]. Call it before Watch starts.
func (d *DirectorySource) OnReload(fn func()) { d.onReload = fn }

// Watch reloads the source on every change in the directory until ctx is
// done. It blocks; run it in its own goroutine.
func (d *DirectorySource) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("trust: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(d.dir); err != nil {
		return fmt.Errorf("trust: watch %s: %w", d.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Chmod) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if err := d.Reload(); err != nil {
				d.log.Printf("reload after %s: %v", ev, err)
				continue
			}
			if d.onReload != nil {
				d.onReload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.Printf("watch error: %v", err)
		}
	}
}

func (d *DirectorySource) CertificatesBySubject(name string) []CertificateAndContext {
	return d.current.Load().CertificatesBySubject(name)
}

func (d *DirectorySource) Certificates() []CertificateAndContext {
	return d.current.Load().Certificates()
}
