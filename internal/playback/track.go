package playback

import "github.com/llehouerou/wavesbot/internal/playlist"

// Track is the value carried by events and queries.
// It aliases playlist.Track so queue snapshots need no conversion.
type Track = playlist.Track
