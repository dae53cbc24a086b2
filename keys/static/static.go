// Package static resolves signing keys from a JWK Set held locally, either
// supplied as a document or loaded from a file that is reloaded whenever
// it changes on disk.
package static

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/MicahParks/jwkset"
	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/cognito-jwt-go/keys"
)

// Resolver implements keys.Resolver over an in-memory JWK Set.
type Resolver struct {
	mu sync.RWMutex
	kf keyfunc.Keyfunc

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New parses a JWK Set document.
func New(raw json.RawMessage) (*Resolver, error) {
	kf, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return &Resolver{kf: kf}, nil
}

func parse(raw json.RawMessage) (keyfunc.Keyfunc, error) {
	kf, err := keyfunc.NewJWKSetJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("static: parse jwk set: %w", err)
	}
	return kf, nil
}

// Resolve looks kid up in the current key set.
func (r *Resolver) Resolve(ctx context.Context, kid string) (*keys.SigningKey, error) {
	if kid == "" {
		return nil, keys.NotFound(kid)
	}

	r.mu.RLock()
	kf := r.kf
	r.mu.RUnlock()

	jwk, err := kf.Storage().KeyRead(ctx, kid)
	if err != nil {
		if errors.Is(err, jwkset.ErrKeyNotFound) {
			return nil, keys.NotFound(kid)
		}
		return nil, fmt.Errorf("static: read key %q: %w", kid, err)
	}

	m := jwk.Marshal()
	return &keys.SigningKey{
		ID:        m.KID,
		Algorithm: string(m.ALG),
		PublicKey: keys.PublicOnly(jwk.Key()),
	}, nil
}

// Replace swaps in a new key set. On error the current set is kept.
func (r *Resolver) Replace(raw json.RawMessage) error {
	kf, err := parse(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.kf = kf
	r.mu.Unlock()
	return nil
}

// WatchFile loads the JWK Set at path and reloads it whenever the file is
// written or (re)created. Reload failures are logged and
// leave the previous set active. Watching stops when ctx is done or Close
// is called.
func WatchFile(ctx context.Context, path string, logHandler slog.Handler) (*Resolver, error) {
	if logHandler == nil {
		logHandler = slog.DiscardHandler
	}
	log := slog.New(logHandler).With(slog.String("jwks_file", path))

	path = filepath.Clean(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("static: read %s: %w", path, err)
	}
	r, err := New(raw)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("static: watcher: %w", err)
	}
	// Watch the directory: editors and secret mounts replace files by rename.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("static: watch %s: %w", path, err)
	}
	r.watcher = w
	r.done = make(chan struct{})

	go r.watch(ctx, path, log)
	return r, nil
}

func (r *Resolver) watch(ctx context.Context, path string, log *slog.Logger) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			_ = r.watcher.Close()
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				log.Warn("jwks file reload failed", slog.String("err", err.Error()))
				continue
			}
			if err := r.Replace(raw); err != nil {
				log.Warn("jwks file rejected", slog.String("err", err.Error()))
				continue
			}
			log.Info("jwks file reloaded")
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("jwks file watch error", slog.String("err", err.Error()))
		}
	}
}

// Close stops watching. It is a no-op for resolvers built with New.
func (r *Resolver) Close() error {
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Close()
	<-r.done
	return err
}

var _ keys.Resolver = (*Resolver)(nil)
