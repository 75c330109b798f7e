// Package configwatcher watches a directory tree of INI-like config files
// and publishes each one's parsed contents to the config exchange under a
// routing key derived from its path, grounded on spec.md §4.7.
package configwatcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/ini.v1"
	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/bus"
)

// Config wires a Watcher.
type Config struct {
	Root           string
	RoutingPrefix  string // prepended to the path-derived routing key, e.g. "config"
	PollInterval   time.Duration
}

// Watcher walks Root on a fixed poll interval (so changes made through a
// container bind-mount, which inotify often misses, are still observed),
// while also keeping an fsnotify watch on Root itself as a fast-path hint
// that triggers an out-of-cycle rescan.
type Watcher struct {
	cfg Config
	b   *bus.Adapter
	log zerolog.Logger

	mtimes   map[string]time.Time
	firstRun bool
}

// NewWatcher builds a Watcher.
func NewWatcher(cfg Config, b *bus.Adapter, log zerolog.Logger) *Watcher {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Watcher{
		cfg:      cfg,
		b:        b,
		log:      log.With().Str("component", "configwatcher").Logger(),
		mtimes:   make(map[string]time.Time),
		firstRun: true,
	}
}

// Run implements supervise.Worker.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.b.Connect(ctx); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn().Err(err).Msg("fsnotify unavailable, falling back to pure polling")
	} else {
		defer fw.Close()
		if err := fw.Add(w.cfg.Root); err != nil {
			w.log.Warn().Err(err).Str("root", w.cfg.Root).Msg("could not watch root")
		}
	}

	if err := w.scan(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	if fw != nil {
		events = fw.Events
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.scan(ctx); err != nil {
				return err
			}
		case <-events:
			if err := w.scan(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) scan(ctx context.Context) error {
	seen := make(map[string]bool)

	err := filepath.WalkDir(w.cfg.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entry, skip it rather than abort the whole walk
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		seen[path] = true

		prior, known := w.mtimes[path]
		if known && !info.ModTime().After(prior) {
			return nil
		}
		w.mtimes[path] = info.ModTime()
		w.publishFile(ctx, path)
		return nil
	})
	if err != nil {
		return err
	}

	for path := range w.mtimes {
		if !seen[path] {
			delete(w.mtimes, path)
			w.publishDeletion(ctx, path)
		}
	}

	w.firstRun = false
	return nil
}

func (w *Watcher) publishFile(ctx context.Context, path string) {
	cfg, err := ini.Load(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("could not parse config file, dropping")
		return
	}

	doc := make(map[string]map[string]string, len(cfg.Sections()))
	for _, section := range cfg.Sections() {
		options := make(map[string]string, len(section.Keys()))
		for _, key := range section.Keys() {
			options[key.Name()] = key.Value()
		}
		doc[section.Name()] = options
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("could not encode parsed config")
		return
	}

	routingKey := w.routingKeyFor(path)
	if w.firstRun {
		w.log.Info().Str("path", path).Msg("first run: hydrating downstream with existing config")
	}
	if err := w.b.PublishConfirm(ctx, routingKey, payload); err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("could not publish config")
	}
}

func (w *Watcher) publishDeletion(ctx context.Context, path string) {
	routingKey := w.routingKeyFor(path)
	if err := w.b.PublishConfirm(ctx, routingKey, []byte("null")); err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("could not publish config deletion")
	}
}

func (w *Watcher) routingKeyFor(path string) string {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	if w.cfg.RoutingPrefix == "" {
		return rel
	}
	return strings.TrimSuffix(w.cfg.RoutingPrefix, ".") + "." + strings.ReplaceAll(rel, "/", ".")
}
