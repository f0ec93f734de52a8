package playback

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llehouerou/wavesbot/internal/errmsg"
	"github.com/llehouerou/wavesbot/internal/player"
	"github.com/llehouerou/wavesbot/internal/playlist"
)

// Snapshot is a read-only copy of a session's observable state.
type Snapshot struct {
	TenantID string  `json:"tenantID"`
	State    State   `json:"state"`
	Current  *Track  `json:"current"`
	Index    int     `json:"index"`
	Tracks   []Track `json:"tracks"`
	Volume   int     `json:"volume"`
	Paused   bool    `json:"paused"`
}

// Session is the playback state machine of one tenant. Every operation is
// serialized by the session mutex, including track-end notifications.
type Session struct {
	tenant      string
	channel     string
	resolver    player.Resolver
	volumes     VolumeStore
	logger      *zap.Logger
	idleTimeout time.Duration
	onStop      func(*Session)

	hub    *Hub
	events *eventPump

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	conn       player.Connection
	queue      *playlist.Queue
	volume     int
	rng        *rand.Rand
	stream     player.Stream
	generation uint64
	idleTimer  *time.Timer
	idleGen    uint64
	stopped    bool
}

type sessionConfig struct {
	tenant      string
	channel     string
	resolver    player.Resolver
	volumes     VolumeStore
	logger      *zap.Logger
	idleTimeout time.Duration
	volume      int
	rng         *rand.Rand
	onStop      func(*Session)
}

// newSession creates a session in the Connecting state. It becomes usable
// once attach hands it a live connection.
func newSession(cfg sessionConfig) *Session {
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tenant", cfg.tenant))
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		tenant:      cfg.tenant,
		channel:     cfg.channel,
		resolver:    cfg.resolver,
		volumes:     cfg.volumes,
		logger:      logger,
		idleTimeout: cfg.idleTimeout,
		onStop:      cfg.onStop,
		hub:         hub,
		events:      newEventPump(hub),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateConnecting,
		queue:       playlist.NewQueue(),
		volume:      player.ClampVolume(cfg.volume),
		rng:         cfg.rng,
	}
}

// attach completes creation: the connection is owned by the session from
// now on and the session enters Idle. It returns false, leaving the session
// Connecting, when the connection was lost before it could be attached.
func (s *Session) attach(conn player.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	select {
	case <-conn.Lost():
		return false
	default:
	}
	conn.SetVolume(s.volume)
	s.setStateLocked(StateIdle)
	go s.watchConnection(conn)
	return true
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// TenantID returns the tenant this session belongs to.
func (s *Session) TenantID() string { return s.tenant }

// Channel returns the channel the session joined.
func (s *Session) Channel() string { return s.channel }

// Subscribe registers an observer for this session's events.
func (s *Session) Subscribe(o Observer) *Subscription {
	return s.hub.Subscribe(o)
}

// Done is closed once the session has stopped and every pending event has
// been delivered.
func (s *Session) Done() <-chan struct{} {
	return s.events.done
}

// Play resolves term and appends the result to the queue. If nothing is
// playing, streaming starts immediately.
func (s *Session) Play(ctx context.Context, term, requestedBy string) (track Track, err error) {
	defer s.recoverOp(errmsg.OpPlay, &err)

	term = strings.TrimSpace(term)
	if term == "" {
		return Track{}, &Error{Kind: KindInvalidArgument, Op: errmsg.OpPlay, Err: errors.New("empty search term")}
	}
	if s.isStopped() {
		return Track{}, newError(KindSessionNotFound, errmsg.OpPlay, errSessionStopped)
	}

	resolved, err := s.resolve(ctx, term)
	if err != nil {
		return Track{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Track{}, newError(KindSessionNotFound, errmsg.OpPlay, errSessionStopped)
	}

	if requestedBy != "" {
		resolved.RequestedBy = requestedBy
	}
	if resolved.ID == "" || s.queue.Contains(resolved.ID) {
		resolved.ID = uuid.NewString()
	}

	s.queue.Append(resolved)
	s.emitQueueLocked()

	if s.state == StateIdle {
		prevIdx := s.queue.CurrentIndex()
		s.startLocked(nil, prevIdx)
		return resolved, nil
	}

	position := s.queue.Len() - 1 - s.queue.CurrentIndex()
	s.emit(Info{Text: fmt.Sprintf("Queued %s (%s in queue)", resolved.DisplayName(), humanize.Ordinal(position))})
	return resolved, nil
}

// resolve runs the resolver outside the session lock. Stop cancels it.
func (s *Session) resolve(ctx context.Context, term string) (Track, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAfter := context.AfterFunc(s.ctx, cancel)
	defer stopAfter()

	resolved, err := s.resolver.Resolve(ctx, term)
	if err == nil {
		return resolved, nil
	}
	if s.ctx.Err() != nil {
		return Track{}, newError(KindSessionNotFound, errmsg.OpPlay, errSessionStopped)
	}
	if ctx.Err() != nil && !errors.Is(err, player.ErrTrackNotFound) {
		return Track{}, ctx.Err()
	}
	s.logger.Debug("track not found", zap.String("term", term), zap.Error(err))
	return Track{}, &Error{Kind: KindTrackNotFound, Op: errmsg.OpPlay, Context: term, Err: err}
}

// Pause pauses the current stream. Outside Playing it only emits Info.
func (s *Session) Pause() (err error) {
	defer s.recoverOp(errmsg.OpPause, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return newError(KindSessionNotFound, errmsg.OpPause, errSessionStopped)
	}
	if s.state != StatePlaying || s.stream == nil {
		s.emit(Info{Text: "Nothing is playing"})
		return nil
	}
	s.stream.Pause()
	s.setStateLocked(StatePaused)
	return nil
}

// Resume resumes a paused stream. Outside Paused it only emits Info.
func (s *Session) Resume() (err error) {
	defer s.recoverOp(errmsg.OpResume, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return newError(KindSessionNotFound, errmsg.OpResume, errSessionStopped)
	}
	if s.state != StatePaused || s.stream == nil {
		s.emit(Info{Text: "Playback is not paused"})
		return nil
	}
	s.stream.Resume()
	s.setStateLocked(StatePlaying)
	return nil
}

// Skip advances the queue by amount. Landing past the last track exhausts
// the queue and the session goes Idle.
func (s *Session) Skip(amount int) (err error) {
	defer s.recoverOp(errmsg.OpSkip, &err)

	if amount < 1 {
		return &Error{Kind: KindInvalidArgument, Op: errmsg.OpSkip, Err: fmt.Errorf("amount must be positive, got %d", amount)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return newError(KindSessionNotFound, errmsg.OpSkip, errSessionStopped)
	}
	s.skipLocked(amount)
	return nil
}

// SkipPrevious retreats the queue by amount, clamped at the first track.
func (s *Session) SkipPrevious(amount int) (err error) {
	defer s.recoverOp(errmsg.OpSkipPrevious, &err)

	if amount < 1 {
		return &Error{Kind: KindInvalidArgument, Op: errmsg.OpSkipPrevious, Err: fmt.Errorf("amount must be positive, got %d", amount)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return newError(KindSessionNotFound, errmsg.OpSkipPrevious, errSessionStopped)
	}
	if s.queue.IsEmpty() {
		s.emit(Info{Text: "The queue is empty"})
		return nil
	}

	prev, prevIdx := s.queue.Current(), s.queue.CurrentIndex()
	s.stopStreamLocked()
	s.queue.Advance(-amount)
	s.startLocked(prev, prevIdx)
	return nil
}

// SetVolume clamps v to [0, 100], applies it and returns the applied value.
func (s *Session) SetVolume(v int) (applied int, err error) {
	defer s.recoverOp(errmsg.OpVolume, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, newError(KindSessionNotFound, errmsg.OpVolume, errSessionStopped)
	}

	s.volume = player.ClampVolume(v)
	s.conn.SetVolume(s.volume)
	s.emit(VolumeChange{Volume: s.volume})

	if s.volumes != nil {
		if err := s.volumes.SaveVolume(s.tenant, s.volume); err != nil {
			s.logger.Warn("failed to save volume",
				zap.String("op", string(errmsg.OpVolumeSave)),
				zap.Int("volume", s.volume),
				zap.Error(err),
			)
		}
	}
	return s.volume, nil
}

// UpdateQueue reorders the queue. ids must be a permutation of the IDs in
// the queue; otherwise nothing changes.
func (s *Session) UpdateQueue(ids []string) (err error) {
	defer s.recoverOp(errmsg.OpQueueUpdate, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return newError(KindSessionNotFound, errmsg.OpQueueUpdate, errSessionStopped)
	}
	if err := s.queue.SetOrder(ids); err != nil {
		return newError(KindInvalidQueueEdit, errmsg.OpQueueUpdate, err)
	}
	s.emitQueueLocked()
	return nil
}

// Shuffle permutes the queue. The current track keeps its position.
func (s *Session) Shuffle() (err error) {
	defer s.recoverOp(errmsg.OpQueueShuffle, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return newError(KindSessionNotFound, errmsg.OpQueueShuffle, errSessionStopped)
	}
	s.queue.Shuffle(s.rng)
	s.emitQueueLocked()
	return nil
}

// Clear removes every track except the one currently playing.
func (s *Session) Clear() (err error) {
	defer s.recoverOp(errmsg.OpQueueClear, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return newError(KindSessionNotFound, errmsg.OpQueueClear, errSessionStopped)
	}
	s.queue.Clear()
	s.emitQueueLocked()
	return nil
}

// Stop disconnects, enters Stopped, drops every observer once pending events
// are delivered and removes the session from its registry. Calling Stop on a
// stopped session does nothing.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancel()
	s.stopStreamLocked()
	s.disarmIdleLocked()
	prev := s.state
	s.state = StateStopped
	s.emit(StateChange{Previous: prev, Current: StateStopped})
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			s.logger.Warn("disconnect failed", zap.String("op", string(errmsg.OpSessionStop)), zap.Error(err))
		}
	}
	s.events.close()
	if s.onStop != nil {
		s.onStop(s)
	}
	s.logger.Info("session stopped")
	return nil
}

// CurrentTrack returns the current track, or nil when nothing is current.
func (s *Session) CurrentTrack() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Current()
}

// Queue returns a snapshot of the queue.
func (s *Session) Queue() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Tracks()
}

// Volume returns the current volume level.
func (s *Session) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// IsPaused reports whether the session is paused.
func (s *Session) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePaused
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a consistent copy of the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		TenantID: s.tenant,
		State:    s.state,
		Current:  s.queue.Current(),
		Index:    s.queue.CurrentIndex(),
		Tracks:   s.queue.Tracks(),
		Volume:   s.volume,
		Paused:   s.state == StatePaused,
	}
}

func (s *Session) skipLocked(amount int) {
	prev, prevIdx := s.queue.Current(), s.queue.CurrentIndex()
	s.stopStreamLocked()
	if _, ok := s.queue.Advance(amount); !ok {
		s.exhaustedLocked()
		return
	}
	s.startLocked(prev, prevIdx)
}

// startLocked streams the current track. Tracks that fail to start are
// reported and skipped.
func (s *Session) startLocked(prev *Track, prevIdx int) {
	for {
		cur := s.queue.Current()
		if cur == nil {
			s.exhaustedLocked()
			return
		}

		stream, err := s.conn.Play(cur.SourceRef)
		if err != nil {
			s.logger.Warn("failed to start stream",
				zap.String("track", cur.DisplayName()),
				zap.Error(err),
			)
			s.emit(ErrorEvent{Op: errmsg.OpPlaybackStart, Context: cur.DisplayName(), Err: err})
			s.queue.Advance(1)
			continue
		}

		s.generation++
		s.stream = stream
		go s.watchStream(stream, s.generation)

		s.emit(TrackChange{
			Previous:      prev,
			Current:       cur,
			PreviousIndex: prevIdx,
			Index:         s.queue.CurrentIndex(),
		})
		s.setStateLocked(StatePlaying)
		s.emit(Info{Text: "Now playing: " + cur.DisplayName()})
		return
	}
}

func (s *Session) exhaustedLocked() {
	s.setStateLocked(StateIdle)
	s.emit(Info{Text: "Queue exhausted"})
}

func (s *Session) stopStreamLocked() {
	if s.stream == nil {
		return
	}
	// Bumping the generation makes the watcher ignore this Done.
	s.generation++
	s.stream.Stop()
	s.stream = nil
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.emit(StateChange{Previous: prev, Current: next})

	if next == StateIdle {
		s.armIdleLocked()
	} else {
		s.disarmIdleLocked()
	}
}

func (s *Session) armIdleLocked() {
	if s.idleTimeout <= 0 {
		return
	}
	s.disarmIdleLocked()
	gen := s.idleGen
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() { s.idleExpired(gen) })
}

func (s *Session) disarmIdleLocked() {
	s.idleGen++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func (s *Session) idleExpired(gen uint64) {
	s.mu.Lock()
	if s.stopped || s.idleGen != gen || s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.emit(Info{Text: fmt.Sprintf("Leaving after %s of inactivity", s.idleTimeout)})
	s.mu.Unlock()
	s.Stop()
}

func (s *Session) watchStream(stream player.Stream, gen uint64) {
	select {
	case <-stream.Done():
		s.handleStreamEnd(gen, stream.Err())
	case <-s.ctx.Done():
	}
}

// handleStreamEnd runs a finished stream through the same path as Skip(1).
func (s *Session) handleStreamEnd(gen uint64, streamErr error) {
	var err error
	defer s.recoverOp(errmsg.OpSkip, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || gen != s.generation {
		return
	}
	cur := s.queue.Current()
	if streamErr != nil {
		ctxName := ""
		if cur != nil {
			ctxName = cur.DisplayName()
		}
		s.logger.Warn("stream failed", zap.String("track", ctxName), zap.Error(streamErr))
		s.emit(ErrorEvent{Op: errmsg.OpPlay, Context: ctxName, Err: streamErr})
	}
	s.stream = nil
	s.skipLocked(1)
}

func (s *Session) watchConnection(conn player.Connection) {
	select {
	case <-conn.Lost():
		s.logger.Warn("connection lost")
		s.emit(Info{Text: "Connection lost"})
		s.Stop()
	case <-s.ctx.Done():
	}
}

func (s *Session) emitQueueLocked() {
	s.emit(QueueChange{Tracks: s.queue.Tracks(), Index: s.queue.CurrentIndex()})
}

func (s *Session) emit(e Event) {
	s.events.send(e)
}

// recoverOp converts a panic inside an operation into an internal error
// returned to the caller and reported as an ErrorEvent.
func (s *Session) recoverOp(op errmsg.Op, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	s.logger.Error("operation panicked",
		zap.String("op", string(op)),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
	e := newError(KindInternal, op, fmt.Errorf("panic: %v", r))
	s.emit(ErrorEvent{Op: op, Err: e})
	if errp != nil {
		*errp = e
	}
}
