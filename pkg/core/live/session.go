// Package live runs the realtime voice session: microphone capture flowing
// out to the conversational model, and model audio, transcripts, and tool
// calls flowing back in.
package live

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bucketworks/kiosk/pkg/core/audio"
	"github.com/bucketworks/kiosk/pkg/core/dispatch"
)

// ServerMessage is one provider-neutral inbound message. Any combination of
// fields may be set.
type ServerMessage struct {
	// SetupComplete marks the handshake acknowledgment.
	SetupComplete bool

	// AudioB64 is a base64 PCM16 mono chunk at the playback rate.
	AudioB64 string

	// Transcript is a fragment of the spoken reply's transcription.
	Transcript string

	// ToolCalls are function calls to execute in order.
	ToolCalls []dispatch.ToolCall

	// TurnComplete marks the end of a model turn.
	TurnComplete bool
}

// ModelStream is a connected bidirectional model session.
type ModelStream interface {
	// SendAudio forwards one captured audio chunk.
	SendAudio(ctx context.Context, mimeType string, data []byte) error

	// SendToolResponses returns tool results for a received batch.
	SendToolResponses(ctx context.Context, responses []dispatch.ToolResponse) error

	// Receive blocks for the next server message. Returns an error once the
	// stream is closed.
	Receive() (*ServerMessage, error)

	// Close tears the stream down.
	Close() error
}

// ModelClient dials model streams.
type ModelClient interface {
	Connect(ctx context.Context, cfg Config) (ModelStream, error)
}

// Microphone is a restartable capture source producing float32 mono frames
// at the capture rate. Frames returns the channel for the current run; it is
// closed when capture stops.
type Microphone interface {
	Start(ctx context.Context) error
	Frames() <-chan []float32
	Stop() error
}

// ToolHandler executes a tool-call batch and produces one response per call.
// *dispatch.Dispatcher satisfies it.
type ToolHandler interface {
	HandleBatch(ctx context.Context, calls []dispatch.ToolCall) []dispatch.ToolResponse
}

// Session is one voice conversation. A session is single-use: Start once,
// Stop once; Manager creates a fresh one per toggle.
//
// The capture path never blocks on the network: microphone frames are
// converted to PCM16 and queued on a bounded channel, and a full queue drops
// the chunk. The receive path owns playback scheduling and tool dispatch.
type Session struct {
	config Config
	client ModelClient
	mic    Microphone
	tools  ToolHandler
	player *audio.Player

	mu         sync.RWMutex
	state      State
	status     Status
	transcript strings.Builder
	stream     ModelStream
	cancel     context.CancelFunc

	sessionID string
	events    chan Event
	outbound  chan []byte

	// generation stamps the loops of the current run; Stop bumps it so
	// stale loops and callbacks become no-ops.
	generation atomic.Int64
	closed     atomic.Bool

	ctx context.Context

	debugEnabled bool
}

// NewSession creates a session. player may be nil for headless use; tools may
// be nil to ignore tool calls.
func NewSession(config Config, client ModelClient, mic Microphone, tools ToolHandler, player *audio.Player) *Session {
	config = config.withDefaults()
	return &Session{
		config:    config,
		client:    client,
		mic:       mic,
		tools:     tools,
		player:    player,
		state:     StateClosed,
		status:    StatusIdle,
		sessionID: "live_" + uuid.NewString(),
		events:    make(chan Event, 100),
		outbound:  make(chan []byte, config.OutboundBuffer),
	}
}

// EnableDebug enables debug event emission and stderr diagnostics.
func (s *Session) EnableDebug() {
	s.debugEnabled = true
}

// SessionID returns the session identifier.
func (s *Session) SessionID() string {
	return s.sessionID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns the user-visible activity status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Events returns the channel for receiving session events.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start connects the model stream, claims the microphone, and launches the
// capture, send, and receive loops.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateClosed || s.closed.Load() {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.state = StateOpening
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	stream, err := s.client.Connect(s.ctx, s.config)
	if err != nil {
		s.abortOpen()
		return fmt.Errorf("connect model stream: %w", err)
	}
	if s.mic != nil {
		if err := s.mic.Start(s.ctx); err != nil {
			stream.Close()
			s.abortOpen()
			return fmt.Errorf("start microphone: %w", err)
		}
	}

	s.mu.Lock()
	if s.closed.Load() {
		// Stop ran while the connect was in flight and could not see
		// these resources. Release them and stay closed.
		s.mu.Unlock()
		if s.mic != nil {
			s.mic.Stop()
		}
		stream.Close()
		return fmt.Errorf("session stopped during connect")
	}
	s.stream = stream
	s.state = StateOpen
	gen := s.generation.Load()
	s.mu.Unlock()

	if s.player != nil {
		s.player.SetStateHooks(
			func() { s.setStatusIfOpen(StatusSpeaking) },
			func() { s.setStatusIfOpen(StatusListening) },
		)
	}
	s.setStatusIfOpen(StatusListening)

	if s.mic != nil {
		go s.captureLoop(gen)
	}
	go s.sendLoop(gen, stream)
	go s.receiveLoop(gen, stream)

	s.debug("SESSION", "Session open, model "+s.config.Model)
	s.emit(&SessionOpenedEvent{SessionID: s.sessionID, Model: s.config.Model})
	return nil
}

func (s *Session) abortOpen() {
	s.mu.Lock()
	s.state = StateClosed
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.setStatus(StatusError)
}

// Stop tears the session down. Idempotent; each resource is released
// best-effort and the first error is reported.
func (s *Session) Stop() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.debug("SESSION", "Closing session")

	s.mu.Lock()
	s.state = StateClosing
	stream := s.stream
	cancel := s.cancel
	s.mu.Unlock()

	s.generation.Add(1)
	if cancel != nil {
		cancel()
	}

	var errs []error
	if s.mic != nil {
		if err := s.mic.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop microphone: %w", err))
		}
	}
	if s.player != nil {
		s.player.Stop()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.setStatus(StatusIdle)
	s.emit(&SessionClosedEvent{})
	return errors.Join(errs...)
}

// captureLoop converts microphone frames to PCM16 and queues them for the
// sender. Capture cadence is never tied to network latency; a full queue
// drops the chunk.
func (s *Session) captureLoop(gen int64) {
	frames := s.mic.Frames()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok || s.generation.Load() != gen {
				return
			}
			if len(frame) == 0 {
				continue
			}
			select {
			case s.outbound <- audio.PCM16FromFloat32(frame):
			default:
				s.debug("AUDIO", "Outbound buffer full, dropping chunk")
			}
		}
	}
}

func (s *Session) sendLoop(gen int64, stream ModelStream) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.outbound:
			if s.generation.Load() != gen {
				return
			}
			if err := stream.SendAudio(s.ctx, audio.CaptureMimeType, data); err != nil {
				if s.generation.Load() == gen && !s.closed.Load() {
					s.fail(fmt.Errorf("send audio: %w", err))
				}
				return
			}
		}
	}
}

func (s *Session) receiveLoop(gen int64, stream ModelStream) {
	for {
		msg, err := stream.Receive()
		if err != nil {
			if s.generation.Load() == gen && !s.closed.Load() {
				s.fail(fmt.Errorf("receive: %w", err))
			}
			return
		}
		if s.generation.Load() != gen {
			return
		}
		s.handleMessage(msg, stream)
	}
}

func (s *Session) handleMessage(msg *ServerMessage, stream ModelStream) {
	if msg == nil {
		return
	}

	if len(msg.ToolCalls) > 0 && s.tools != nil {
		s.debug("TOOL", fmt.Sprintf("Dispatching batch of %d calls", len(msg.ToolCalls)))
		responses := s.tools.HandleBatch(s.ctx, msg.ToolCalls)
		if err := stream.SendToolResponses(s.ctx, responses); err != nil {
			s.debug("TOOL", "Failed to send tool responses: "+err.Error())
		}
		s.emit(&ToolBatchEvent{Calls: msg.ToolCalls, Responses: responses})
	}

	if msg.AudioB64 != "" {
		s.schedulePlayback(msg.AudioB64)
	}

	if msg.Transcript != "" {
		s.mu.Lock()
		s.transcript.WriteString(msg.Transcript)
		s.mu.Unlock()
		s.emit(&TranscriptDeltaEvent{Delta: msg.Transcript})
	}

	if msg.TurnComplete {
		s.mu.Lock()
		text := s.transcript.String()
		s.transcript.Reset()
		s.mu.Unlock()
		s.emit(&TurnCompleteEvent{Transcript: text})
	}
}

// schedulePlayback decodes one inbound audio chunk and hands it to the
// player. Malformed chunks are dropped; one bad chunk never ends the session.
func (s *Session) schedulePlayback(b64 string) {
	data, err := audio.Decode(b64)
	if err != nil {
		s.debug("AUDIO", "Dropping malformed audio chunk: "+err.Error())
		return
	}
	buf, err := audio.DecodePCM16(data, audio.PlaybackSampleRateHz, 1)
	if err != nil {
		s.debug("AUDIO", "Dropping malformed audio chunk: "+err.Error())
		return
	}
	if s.player != nil {
		s.player.Schedule(buf)
	}
}

func (s *Session) fail(err error) {
	s.debug("SESSION", "Fatal: "+err.Error())
	s.emit(&ErrorEvent{Err: err.Error()})
	s.Stop()
	s.setStatus(StatusError)
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	from := s.status
	s.status = status
	s.mu.Unlock()
	s.emit(&StatusChangedEvent{From: from, To: status})
}

func (s *Session) setStatusIfOpen(status Status) {
	s.mu.RLock()
	open := s.state == StateOpen
	s.mu.RUnlock()
	if open {
		s.setStatus(status)
	}
}

func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		// Slow consumers lose events rather than stalling the loops.
	}
}

func (s *Session) debug(category, message string) {
	if s.debugEnabled {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Fprintf(os.Stderr, "\033[90m%s\033[0m [\033[36m%-7s\033[0m] %s\n", timestamp, category, message)
		s.emit(&DebugEvent{Category: category, Message: message})
	}
}

// Manager enforces the one-open-session rule and implements the voice
// toggle: starting while a session is open stops it instead.
type Manager struct {
	config Config
	client ModelClient
	mic    Microphone
	tools  ToolHandler
	player *audio.Player
	debug  bool

	mu      sync.Mutex
	current *Session
}

// NewManager returns a manager that builds sessions from the given parts.
func NewManager(config Config, client ModelClient, mic Microphone, tools ToolHandler, player *audio.Player) *Manager {
	return &Manager{
		config: config,
		client: client,
		mic:    mic,
		tools:  tools,
		player: player,
	}
}

// EnableDebug turns on debug output for sessions created from now on.
func (m *Manager) EnableDebug() {
	m.debug = true
}

// Active returns the open session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Toggle starts a new session when none is open, and stops the open one
// otherwise. Returns the session affected and whether it was started.
func (m *Manager) Toggle(ctx context.Context) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		session := m.current
		m.current = nil
		return session, false, session.Stop()
	}

	session := NewSession(m.config, m.client, m.mic, m.tools, m.player)
	if m.debug {
		session.EnableDebug()
	}
	if err := session.Start(ctx); err != nil {
		return nil, false, err
	}
	m.current = session
	return session, true, nil
}

// Stop closes the open session if any.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	session := m.current
	m.current = nil
	return session.Stop()
}
