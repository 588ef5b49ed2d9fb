package kestrel

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsdr/kestrel/pkg/dsp/hbfilt"
	"github.com/kestrelsdr/kestrel/pkg/iq"
	"github.com/kestrelsdr/kestrel/pkg/message"
	"github.com/kestrelsdr/kestrel/pkg/util"
)

const fileSourceReadSize = 32768 // CS8 bytes per read, 16384 samples

// FileSourceSettings is the immutable configuration snapshot for a
// FileSource channel.
type FileSourceSettings struct {
	FileName        string
	Loop            bool
	GainDB          float64
	Log2Interp      uint
	FilterChainHash uint
	Title           string
}

func (s FileSourceSettings) diff(o FileSourceSettings) []string {
	var changed []string
	if s.FileName != o.FileName {
		changed = append(changed, "file_name")
	}
	if s.Loop != o.Loop {
		changed = append(changed, "loop")
	}
	if s.GainDB != o.GainDB {
		changed = append(changed, "gain_db")
	}
	if s.Log2Interp != o.Log2Interp {
		changed = append(changed, "log2_interp")
	}
	if s.FilterChainHash != o.FilterChainHash {
		changed = append(changed, "filter_chain_hash")
	}
	if s.Title != o.Title {
		changed = append(changed, "title")
	}
	return changed
}

type MsgConfigureFileSource struct {
	Settings FileSourceSettings
	Force    bool
}

type MsgConfigureFileSourceName struct {
	FileName string
}

type MsgConfigureFileSourceWork struct {
	Working bool
}

type MsgConfigureFileSourceSeek struct {
	Millis int
}

// MsgConfigureFileSourceStreamTiming requests a MsgReportStreamTiming on the
// GUI queue.
type MsgConfigureFileSourceStreamTiming struct{}

type MsgReportStreamTiming struct {
	SamplesCount uint64
}

type MsgReportAcquisition struct {
	Acquired bool
}

// FileSource replays a CS8 IQ recording as a pull-style sample source. The
// worker goroutine reads and converts blocks; consumers drain them through
// Pull from a single goroutine.
type FileSource struct {
	logger     zerolog.Logger
	inputQueue *message.Queue
	guiQueue   *message.Queue

	blocks  chan []complex64
	pending []complex64

	quit    chan struct{}
	done    chan struct{}
	stopped sync.Once

	mu              sync.Mutex
	settings        FileSourceSettings
	fileSampleRate  int
	basebandRate    int
	linearGain      float64
	frequencyOffset float64
	working         bool

	file         *os.File
	samplesCount uint64
}

type FileSourceOption func(s *FileSource)

func WithFileSourceLogger(logger zerolog.Logger) FileSourceOption {
	return func(s *FileSource) { s.logger = logger }
}

func WithFileSourceGUIQueue(q *message.Queue) FileSourceOption {
	return func(s *FileSource) { s.guiQueue = q }
}

func NewFileSource(fileSampleRate int, settings FileSourceSettings, opts ...FileSourceOption) *FileSource {
	s := &FileSource{
		logger:         log.Logger,
		inputQueue:     message.NewQueue(),
		blocks:         make(chan []complex64, 4),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		fileSampleRate: fileSampleRate,
		linearGain:     1.0,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.applySettings(settings, true)
	return s
}

func (s *FileSource) InputMessageQueue() *message.Queue {
	return s.inputQueue
}

// SamplesCount reports how many samples have been read from the file. Zero
// before any data has been processed.
func (s *FileSource) SamplesCount() uint64 {
	return atomic.LoadUint64(&s.samplesCount)
}

// FrequencyOffset is the cumulative shift of the configured half-band
// interpolation chain in Hz against the current baseband rate.
func (s *FileSource) FrequencyOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequencyOffset
}

// Pull copies up to len(out) samples into out. Non-blocking: when the worker
// has nothing buffered it returns short. Single consumer only.
func (s *FileSource) Pull(out []complex64) int {
	n := 0
	for n < len(out) {
		if len(s.pending) == 0 {
			select {
			case blk := <-s.blocks:
				s.pending = blk
			default:
				return n
			}
		}
		c := copy(out[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n
}

func (s *FileSource) Stop() {
	s.stopped.Do(func() { close(s.quit) })
	<-s.done
}

func (s *FileSource) Start(ctx context.Context) error {
	defer close(s.done)
	defer s.closeFile()

	atomic.StoreUint64(&s.samplesCount, 0)

	for {
		s.mu.Lock()
		working := s.working && s.file != nil
		s.mu.Unlock()

		if !working {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.quit:
				return nil
			case <-s.inputQueue.Wake():
				s.drainMessages()
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quit:
			return nil
		case <-s.inputQueue.Wake():
			s.drainMessages()
		default:
		}

		blk, err := s.readBlock()
		if err != nil {
			// Resource failures surface as a stopped stream, never a fault
			// mid-pull.
			s.logger.Error().Err(err).Msg("file source read failed")
			s.mu.Lock()
			s.working = false
			s.mu.Unlock()
			continue
		}
		if blk == nil {
			continue
		}

		delivered := false
		for !delivered {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.quit:
				return nil
			case <-s.inputQueue.Wake():
				// Messages must apply even when no consumer is draining
				// blocks; a stop or seek otherwise waits forever behind a
				// full buffer.
				s.drainMessages()
				s.mu.Lock()
				stopped := !s.working || s.file == nil
				s.mu.Unlock()
				if stopped {
					delivered = true // drop the block, the stream is paused
				}
			case s.blocks <- blk:
				delivered = true
			}
		}
	}
}

func (s *FileSource) readBlock() ([]complex64, error) {
	buf := make([]byte, fileSourceReadSize)
	n, err := s.file.Read(buf)
	if err == io.EOF || (err == nil && n == 0) {
		s.mu.Lock()
		loop := s.settings.Loop
		s.mu.Unlock()
		if !loop {
			s.mu.Lock()
			s.working = false
			s.mu.Unlock()
			return nil, nil
		}
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	seg := iq.SegmentCS8{SampleRate: s.fileSampleRate, Data: buf[:n]}
	blk := seg.ToComplex64().Data

	s.mu.Lock()
	gain := float32(s.linearGain)
	s.mu.Unlock()
	if gain != 1.0 {
		for i := range blk {
			blk[i] *= complex(gain, 0)
		}
	}

	atomic.AddUint64(&s.samplesCount, uint64(len(blk)))
	return blk, nil
}

func (s *FileSource) drainMessages() {
	for {
		msg, ok := s.inputQueue.Pop()
		if !ok {
			return
		}
		if !s.handleMessage(msg) {
			s.logger.Debug().Str("kind", fmt.Sprintf("%T", msg)).Msg("unhandled message")
		}
	}
}

func (s *FileSource) handleMessage(msg message.Message) bool {
	switch m := msg.(type) {
	case *MsgConfigureFileSource:
		s.applySettings(m.Settings, m.Force)
		return true

	case *MsgConfigureFileSourceName:
		s.mu.Lock()
		settings := s.settings
		s.mu.Unlock()
		settings.FileName = m.FileName
		s.applySettings(settings, false)
		return true

	case *MsgConfigureFileSourceWork:
		s.mu.Lock()
		s.working = m.Working && s.file != nil
		s.mu.Unlock()
		return true

	case *MsgConfigureFileSourceSeek:
		s.seekMillis(m.Millis)
		return true

	case *MsgConfigureFileSourceStreamTiming:
		if s.guiQueue != nil {
			s.guiQueue.Push(&MsgReportStreamTiming{SamplesCount: s.SamplesCount()})
		}
		return true

	case *MsgSignalNotification:
		s.mu.Lock()
		s.basebandRate = m.SampleRate
		s.recalculateOffsetLocked()
		s.mu.Unlock()
		if s.guiQueue != nil {
			s.guiQueue.Push(&MsgSampleRateNotification{SampleRate: m.SampleRate})
		}
		return true

	default:
		return false
	}
}

func (s *FileSource) seekMillis(millis int) {
	if s.file == nil {
		return
	}
	sampleOffset := int64(millis) * int64(s.fileSampleRate) / 1000
	if _, err := s.file.Seek(sampleOffset*2, io.SeekStart); err != nil {
		s.logger.Error().Err(err).Int("millis", millis).Msg("seek failed")
		return
	}
	atomic.StoreUint64(&s.samplesCount, uint64(sampleOffset))
	s.pendingReset()
}

// pendingReset drops buffered blocks so a seek takes effect promptly.
func (s *FileSource) pendingReset() {
	for {
		select {
		case <-s.blocks:
		default:
			return
		}
	}
}

func (s *FileSource) applySettings(settings FileSourceSettings, force bool) {
	settings.FilterChainHash = hbfilt.ClampCode(settings.Log2Interp, settings.FilterChainHash)

	s.mu.Lock()
	changed := s.settings.diff(settings)
	if len(changed) == 0 && !force {
		s.mu.Unlock()
		return
	}

	reopen := force || s.settings.FileName != settings.FileName
	s.settings = settings
	s.linearGain = util.PowerFromDB(settings.GainDB)
	s.recalculateOffsetLocked()
	s.mu.Unlock()

	if reopen && settings.FileName != "" {
		s.openFile(settings.FileName)
	}

	s.logger.Debug().
		Strs("changed", changed).
		Str("file_name", settings.FileName).
		Bool("loop", settings.Loop).
		Float64("gain_db", settings.GainDB).
		Uint("log2_interp", settings.Log2Interp).
		Uint("filter_chain_hash", settings.FilterChainHash).
		Msg("file source configured")
}

func (s *FileSource) recalculateOffsetLocked() {
	shift := hbfilt.ShiftFactor(s.settings.Log2Interp, s.settings.FilterChainHash)
	s.frequencyOffset = float64(s.basebandRate) * shift
}

func (s *FileSource) openFile(name string) {
	s.closeFile()

	f, err := os.Open(name)
	acquired := err == nil

	s.mu.Lock()
	s.file = f
	if !acquired {
		s.working = false
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("file_name", name).Msg("failed to open source file")
	}
	if s.guiQueue != nil {
		s.guiQueue.Push(&MsgReportAcquisition{Acquired: acquired})
	}
	atomic.StoreUint64(&s.samplesCount, 0)
}

func (s *FileSource) closeFile() {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		f.Close()
	}
}
