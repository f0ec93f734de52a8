// Package library resolves search terms to audio files in local folders.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llehouerou/wavesbot/internal/player"
	"github.com/llehouerou/wavesbot/internal/playlist"
)

// Entry is an indexed audio file.
type Entry struct {
	Path   string
	Title  string
	Artist string

	key string
}

// Resolver implements player.Resolver over a set of source folders. The
// folders are indexed on first use and again on Rescan.
type Resolver struct {
	sources []string
	logger  *zap.Logger

	mu      sync.Mutex
	entries []Entry
	indexed bool
}

// New creates a resolver over sources.
func New(sources []string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		sources: slices.Clone(sources),
		logger:  logger,
	}
}

// Rescan rebuilds the index.
func (r *Resolver) Rescan(ctx context.Context) error {
	entries, err := scan(ctx, r.sources)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entries = entries
	r.indexed = true
	r.mu.Unlock()
	r.logger.Info("library indexed",
		zap.Strings("sources", r.sources),
		zap.Int("tracks", len(entries)),
	)
	return nil
}

// Len returns the number of indexed files.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Resolve returns the best match for term. A term naming a playable file
// under one of the sources resolves to that file directly. Otherwise every word of the term must
// appear in the artist, title or file name; the shortest path wins.
func (r *Resolver) Resolve(ctx context.Context, term string) (playlist.Track, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return playlist.Track{}, fmt.Errorf("empty search term: %w", player.ErrTrackNotFound)
	}

	if player.IsPlayable(term) && r.inSources(term) {
		if info, err := os.Stat(term); err == nil && !info.IsDir() {
			return r.track(readEntry(term)), nil
		}
	}

	if err := r.ensureIndexed(ctx); err != nil {
		return playlist.Track{}, err
	}

	words := strings.Fields(NormalizeTitle(term))
	if len(words) == 0 {
		return playlist.Track{}, player.ErrTrackNotFound
	}

	r.mu.Lock()
	var best *Entry
	for i := range r.entries {
		e := &r.entries[i]
		if !matchesAll(e.key, words) {
			continue
		}
		if best == nil || better(e, best) {
			best = e
		}
	}
	var found Entry
	if best != nil {
		found = *best
	}
	r.mu.Unlock()

	if best == nil {
		return playlist.Track{}, player.ErrTrackNotFound
	}
	return r.track(found), nil
}

// inSources reports whether path, after resolving symlinks, lies inside one
// of the source folders.
func (r *Resolver) inSources(path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	for _, src := range r.sources {
		root, err := filepath.EvalSymlinks(src)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (r *Resolver) ensureIndexed(ctx context.Context) error {
	r.mu.Lock()
	indexed := r.indexed
	r.mu.Unlock()
	if indexed {
		return nil
	}
	return r.Rescan(ctx)
}

// track builds a queue item. Every call gets a fresh ID so the same file can
// be queued twice.
func (r *Resolver) track(e Entry) playlist.Track {
	duration, err := player.ProbeDuration(e.Path)
	if err != nil {
		r.logger.Debug("could not read duration", zap.String("path", e.Path), zap.Error(err))
		duration = 0
	}
	return playlist.Track{
		ID:        uuid.NewString(),
		Title:     e.Title,
		Artist:    e.Artist,
		SourceRef: e.Path,
		Duration:  duration,
	}
}

func better(a, b *Entry) bool {
	if len(a.Path) != len(b.Path) {
		return len(a.Path) < len(b.Path)
	}
	return a.Path < b.Path
}

// scan walks sources and reads the tags of every playable file.
func scan(ctx context.Context, sources []string) ([]Entry, error) {
	var entries []Entry
	for _, src := range sources {
		err := filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Skip unreadable paths and keep scanning the rest.
			if walkErr != nil {
				return nil //nolint:nilerr // intentionally skipping errors
			}
			// Symlinked files could point outside the sources.
			if d.IsDir() || d.Type()&os.ModeSymlink != 0 || !player.IsPlayable(path) {
				return nil
			}
			entries = append(entries, readEntry(path))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// readEntry reads tags from path, falling back to the file name as title.
func readEntry(path string) Entry {
	e := Entry{Path: path}
	if f, err := os.Open(path); err == nil {
		if m, err := tag.ReadFrom(f); err == nil {
			e.Title = strings.TrimSpace(m.Title())
			e.Artist = strings.TrimSpace(m.Artist())
		}
		f.Close()
	}
	if e.Title == "" {
		e.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	e.key = searchKey(e.Artist, e.Title, path)
	return e
}

var _ player.Resolver = (*Resolver)(nil)
