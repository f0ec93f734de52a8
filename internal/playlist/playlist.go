package playlist

import "time"

// Track represents a single playable item in a queue.
// Tracks are values; queue operations identify them by ID.
type Track struct {
	ID          string        `json:"id"`        // unique within a queue
	Title       string        `json:"title"`
	Artist      string        `json:"artist,omitempty"`
	SourceRef   string        `json:"sourceRef"` // opaque handle the connector streams
	Duration    time.Duration `json:"duration"`  // hint, may be zero
	RequestedBy string        `json:"requestedBy,omitempty"`
}

// DisplayName returns "Artist - Title", or just the title when no artist is known.
func (t Track) DisplayName() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

// Playlist holds an ordered collection of tracks.
type Playlist struct {
	tracks []Track
}

// NewPlaylist creates a new empty playlist.
func NewPlaylist() *Playlist {
	return &Playlist{
		tracks: make([]Track, 0),
	}
}

// Add appends tracks to the playlist.
func (p *Playlist) Add(tracks ...Track) {
	p.tracks = append(p.tracks, tracks...)
}

// Clear removes all tracks from the playlist.
func (p *Playlist) Clear() {
	p.tracks = p.tracks[:0]
}

// Tracks returns a copy of all tracks.
func (p *Playlist) Tracks() []Track {
	result := make([]Track, len(p.tracks))
	copy(result, p.tracks)
	return result
}

// Track returns the track at the given index, or nil if out of bounds.
func (p *Playlist) Track(index int) *Track {
	if index < 0 || index >= len(p.tracks) {
		return nil
	}
	return &p.tracks[index]
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.tracks)
}

// IndexOf returns the position of the track with the given ID, or -1.
func (p *Playlist) IndexOf(id string) int {
	for i := range p.tracks {
		if p.tracks[i].ID == id {
			return i
		}
	}
	return -1
}

// set replaces the underlying slice. Callers hand over ownership.
func (p *Playlist) set(tracks []Track) {
	p.tracks = tracks
}
