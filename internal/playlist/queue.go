package playlist

import (
	"errors"
	"math/rand/v2"
)

// ErrInvalidOrder is returned by SetOrder when the new order is not a
// permutation of the IDs currently in the queue.
var ErrInvalidOrder = errors.New("order is not a permutation of the queue")

// Queue wraps a Playlist with a playback cursor.
//
// The cursor is always in [0, Len()]. A cursor equal to Len() means nothing
// is current: the queue is empty or has been played to the end.
type Queue struct {
	playlist     *Playlist
	currentIndex int
}

// NewQueue creates a new empty queue.
func NewQueue() *Queue {
	return &Queue{
		playlist: NewPlaylist(),
	}
}

// Current returns the current track, or nil if the queue is exhausted.
func (q *Queue) Current() *Track {
	t := q.playlist.Track(q.currentIndex)
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// CurrentIndex returns the cursor position (Len() when exhausted).
func (q *Queue) CurrentIndex() int {
	return q.currentIndex
}

// IsExhausted returns true if no track is current.
func (q *Queue) IsExhausted() bool {
	return q.currentIndex >= q.playlist.Len()
}

// Advance moves the cursor by the given amount; negative values retreat.
// The result is clamped to [0, Len()] and never wraps. Returns the new
// current track, or nil and false when the cursor landed past the end.
func (q *Queue) Advance(by int) (*Track, bool) {
	n := q.playlist.Len()
	// Compare against the remaining distance so a huge by cannot overflow.
	switch {
	case by > n-q.currentIndex:
		q.currentIndex = n
	case by < -q.currentIndex:
		q.currentIndex = 0
	default:
		q.currentIndex += by
	}
	t := q.Current()
	return t, t != nil
}

// SetOrder rearranges the queue to match ids, which must contain every
// track ID exactly once. The cursor follows the track that was current
// before the edit. The queue is left untouched on error.
func (q *Queue) SetOrder(ids []string) error {
	if len(ids) != q.playlist.Len() {
		return ErrInvalidOrder
	}

	seen := make(map[string]struct{}, len(ids))
	reordered := make([]Track, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return ErrInvalidOrder
		}
		seen[id] = struct{}{}
		i := q.playlist.IndexOf(id)
		if i < 0 {
			return ErrInvalidOrder
		}
		reordered = append(reordered, *q.playlist.Track(i))
	}

	newIndex := len(reordered)
	if cur := q.Current(); cur != nil {
		newIndex = -1
		for i := range reordered {
			if reordered[i].ID == cur.ID {
				newIndex = i
				break
			}
		}
		if newIndex < 0 {
			return ErrInvalidOrder
		}
	}

	q.playlist.set(reordered)
	q.currentIndex = newIndex
	return nil
}

// Shuffle randomly permutes every track except the current one, which keeps
// its position. A nil rng uses the global source.
func (q *Queue) Shuffle(rng *rand.Rand) {
	tracks := q.playlist.Tracks()
	if len(tracks) < 2 {
		return
	}

	var current *Track
	pool := tracks
	if !q.IsExhausted() {
		current = &tracks[q.currentIndex]
		pool = make([]Track, 0, len(tracks)-1)
		pool = append(pool, tracks[:q.currentIndex]...)
		pool = append(pool, tracks[q.currentIndex+1:]...)
	}

	swap := func(i, j int) { pool[i], pool[j] = pool[j], pool[i] }
	if rng != nil {
		rng.Shuffle(len(pool), swap)
	} else {
		rand.Shuffle(len(pool), swap)
	}

	if current == nil {
		q.playlist.set(pool)
		return
	}

	result := make([]Track, 0, len(tracks))
	result = append(result, pool[:q.currentIndex]...)
	result = append(result, *current)
	result = append(result, pool[q.currentIndex:]...)
	q.playlist.set(result)
}

// Clear removes every track except the current one.
func (q *Queue) Clear() {
	cur := q.Current()
	q.playlist.Clear()
	q.currentIndex = 0
	if cur != nil {
		q.playlist.Add(*cur)
	}
}

// Append adds tracks to the end of the queue without moving the cursor.
func (q *Queue) Append(tracks ...Track) {
	q.playlist.Add(tracks...)
}

// Tracks returns a snapshot of all tracks in the queue.
func (q *Queue) Tracks() []Track {
	return q.playlist.Tracks()
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	return q.playlist.Len()
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return q.playlist.Len() == 0
}

// Pending returns how many tracks follow the current one.
func (q *Queue) Pending() int {
	if q.IsExhausted() {
		return 0
	}
	return q.playlist.Len() - q.currentIndex - 1
}

// Contains reports whether a track with the given ID is in the queue.
func (q *Queue) Contains(id string) bool {
	return q.playlist.IndexOf(id) >= 0
}
