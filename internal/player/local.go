package player

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"go.uber.org/zap"
)

const (
	extMP3  = ".mp3"
	extFLAC = ".flac"
	extWAV  = ".wav"
	extOGG  = ".ogg"

	defaultSampleRate = 44100
)

// Local is a Connector that plays every connection on the local sound
// device. Connections from different tenants are mixed together, which
// makes it useful for development without a chat platform.
type Local struct {
	logger     *zap.Logger
	sampleRate beep.SampleRate

	mu          sync.Mutex
	initialized bool
	mixer       *beep.Mixer
}

// NewLocal creates a local connector. A zero sampleRate uses 44.1kHz.
func NewLocal(sampleRate int, logger *zap.Logger) *Local {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		logger:     logger,
		sampleRate: beep.SampleRate(sampleRate),
		mixer:      &beep.Mixer{},
	}
}

// Join initializes the speaker on first use. Every channel name is joinable.
func (l *Local) Join(ctx context.Context, channelRef string) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if channelRef == "" {
		return nil, fmt.Errorf("empty channel: %w", ErrNotJoinable)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		if err := speaker.Init(l.sampleRate, l.sampleRate.N(time.Second/10)); err != nil {
			return nil, fmt.Errorf("init speaker: %w", err)
		}
		speaker.Play(l.mixer)
		l.initialized = true
	}

	l.logger.Info("joined local channel", zap.String("channel", channelRef))
	return &localConnection{
		owner:   l,
		channel: channelRef,
		level:   100,
		lost:    make(chan struct{}),
	}, nil
}

// Close releases the sound device.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	l.initialized = false
	return nil
}

type localConnection struct {
	owner   *Local
	channel string

	mu      sync.Mutex
	level   int
	current *localStream
	closed  bool
	lost    chan struct{}
}

func (c *localConnection) Play(sourceRef string) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("connection to %s is closed", c.channel)
	}

	s, err := openLocalStream(sourceRef, c.owner.sampleRate, c.level)
	if err != nil {
		return nil, err
	}

	speaker.Lock()
	c.owner.mixer.Add(beep.Seq(s.volume, beep.Callback(func() {
		s.finish(s.decoder.Err())
	})))
	speaker.Unlock()

	c.current = s
	return s, nil
}

func (c *localConnection) SetVolume(level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = ClampVolume(level)
	if c.current != nil {
		c.current.setLevel(c.level)
	}
}

func (c *localConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.current != nil {
		c.current.Stop()
		c.current = nil
	}
	c.owner.logger.Info("left local channel", zap.String("channel", c.channel))
	return nil
}

// Lost never fires: the local device does not drop.
func (c *localConnection) Lost() <-chan struct{} { return c.lost }

type localStream struct {
	file    *os.File
	decoder beep.StreamSeekCloser
	ctrl    *beep.Ctrl
	volume  *effects.Volume

	once sync.Once
	err  error
	done chan struct{}
}

// IsPlayable reports whether path has an extension the local connector
// can decode.
func IsPlayable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case extMP3, extFLAC, extWAV, extOGG:
		return true
	}
	return false
}

// ProbeDuration decodes the header of path and returns its length.
func ProbeDuration(path string) (time.Duration, error) {
	f, decoder, format, err := decodeFile(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	defer decoder.Close()
	return format.SampleRate.D(decoder.Len()), nil
}

func decodeFile(path string) (*os.File, beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !IsPlayable(path) {
		return nil, nil, beep.Format{}, fmt.Errorf("unsupported format: %s", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, beep.Format{}, err
	}

	var decoder beep.StreamSeekCloser
	var format beep.Format
	switch ext {
	case extMP3:
		decoder, format, err = mp3.Decode(f)
	case extFLAC:
		// Some taggers prepend ID3v2 to FLAC files, which the decoder rejects.
		if err := skipID3v2(f); err != nil {
			f.Close()
			return nil, nil, beep.Format{}, err
		}
		decoder, format, err = flac.Decode(f)
	case extWAV:
		decoder, format, err = wav.Decode(f)
	case extOGG:
		decoder, format, err = vorbis.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, nil, beep.Format{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return f, decoder, format, nil
}

func openLocalStream(path string, rate beep.SampleRate, level int) (*localStream, error) {
	f, decoder, format, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	var out beep.Streamer = decoder
	if format.SampleRate != rate {
		out = beep.Resample(4, format.SampleRate, rate, decoder)
	}

	s := &localStream{
		file:    f,
		decoder: decoder,
		ctrl:    &beep.Ctrl{Streamer: out},
		done:    make(chan struct{}),
	}
	s.volume = &effects.Volume{Streamer: s.ctrl, Base: 2}
	s.volume.Volume, s.volume.Silent = levelToVolume(level)
	return s, nil
}

func (s *localStream) Pause() {
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
}

func (s *localStream) Resume() {
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
}

func (s *localStream) Stop() {
	speaker.Lock()
	s.ctrl.Streamer = nil
	speaker.Unlock()
	s.finish(nil)
}

func (s *localStream) Done() <-chan struct{} { return s.done }

func (s *localStream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *localStream) setLevel(level int) {
	speaker.Lock()
	s.volume.Volume, s.volume.Silent = levelToVolume(level)
	speaker.Unlock()
}

// finish may run inside the speaker callback, so it must not take the
// speaker lock.
func (s *localStream) finish(err error) {
	s.once.Do(func() {
		s.err = err
		s.decoder.Close()
		s.file.Close()
		close(s.done)
	})
}

// skipID3v2 skips an ID3v2 tag if present at the beginning of the file.
func skipID3v2(r io.ReadSeeker) error {
	header := make([]byte, 10)
	n, err := io.ReadFull(r, header)
	if err != nil && n == 0 {
		return err
	}
	if n < 10 || string(header[0:3]) != "ID3" {
		_, err = r.Seek(0, io.SeekStart)
		return err
	}

	// Size is a syncsafe integer: 7 bits per byte.
	size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])
	_, err = r.Seek(10+size, io.SeekStart)
	return err
}

var (
	_ Connector  = (*Local)(nil)
	_ Connection = (*localConnection)(nil)
	_ Stream     = (*localStream)(nil)
)
