// internal/player/mock.go
package player

import (
	"context"
	"sync"
)

// MockConnector is a test double for Connector.
type MockConnector struct {
	mu        sync.Mutex
	joinErr   error
	joinBlock chan struct{}
	joinLost  bool
	joins     []string
	conns     []*MockConnection
}

// NewMock creates a new mock connector for testing.
func NewMock() *MockConnector {
	return &MockConnector{}
}

func (m *MockConnector) Join(ctx context.Context, channelRef string) (Connection, error) {
	m.mu.Lock()
	m.joins = append(m.joins, channelRef)
	err := m.joinErr
	block := m.joinBlock
	lost := m.joinLost
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	c := newMockConnection()
	if lost {
		c.SimulateLost()
	}
	m.mu.Lock()
	m.conns = append(m.conns, c)
	m.mu.Unlock()
	return c, nil
}

// Test helpers

func (m *MockConnector) SetJoinError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinErr = err
}

// SetJoinLost makes Join return connections that have already dropped.
func (m *MockConnector) SetJoinLost(lost bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinLost = lost
}

// BlockJoins makes Join wait until the returned function is called or the
// join context is done.
func (m *MockConnector) BlockJoins() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.joinBlock = ch
	m.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (m *MockConnector) JoinCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.joins...)
}

// LastConnection returns the most recently established connection, or nil.
func (m *MockConnector) LastConnection() *MockConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// MockConnection is a test double for Connection.
type MockConnection struct {
	mu           sync.Mutex
	playErr      map[string]error
	playCalls    []string
	streams      []*MockStream
	volume       int
	disconnected bool
	lost         chan struct{}
	lostOnce     sync.Once
}

func newMockConnection() *MockConnection {
	return &MockConnection{
		playErr: make(map[string]error),
		volume:  -1,
		lost:    make(chan struct{}),
	}
}

func (c *MockConnection) Play(sourceRef string) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playCalls = append(c.playCalls, sourceRef)
	if err := c.playErr[sourceRef]; err != nil {
		return nil, err
	}
	s := newMockStream(sourceRef)
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *MockConnection) SetVolume(level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = level
}

func (c *MockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *MockConnection) Lost() <-chan struct{} { return c.lost }

// Test helpers

func (c *MockConnection) SetPlayError(sourceRef string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playErr[sourceRef] = err
}

func (c *MockConnection) PlayCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.playCalls...)
}

// Volume returns the last applied level, or -1 if SetVolume was never called.
func (c *MockConnection) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func (c *MockConnection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// CurrentStream returns the most recently started stream, or nil.
func (c *MockConnection) CurrentStream() *MockStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return nil
	}
	return c.streams[len(c.streams)-1]
}

// SimulateLost simulates the connection dropping.
func (c *MockConnection) SimulateLost() {
	c.lostOnce.Do(func() { close(c.lost) })
}

// MockStream is a test double for Stream.
type MockStream struct {
	SourceRef string

	mu      sync.Mutex
	paused  bool
	stopped bool
	err     error
	done    chan struct{}
	once    sync.Once
}

func newMockStream(sourceRef string) *MockStream {
	return &MockStream{SourceRef: sourceRef, done: make(chan struct{})}
}

func (s *MockStream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *MockStream) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

func (s *MockStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.finish(nil)
}

func (s *MockStream) Done() <-chan struct{} { return s.done }

func (s *MockStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *MockStream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Test helpers

func (s *MockStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *MockStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// SimulateFinished simulates the track reaching its natural end.
func (s *MockStream) SimulateFinished() { s.finish(nil) }

// SimulateFailure simulates the stream breaking with err.
func (s *MockStream) SimulateFailure(err error) { s.finish(err) }

// Verify mocks implement their interfaces at compile time.
var (
	_ Connector  = (*MockConnector)(nil)
	_ Connection = (*MockConnection)(nil)
	_ Stream     = (*MockStream)(nil)
)
