package audio

import (
	"sync"
	"time"
)

// Sink receives raw PCM16 bytes for actual output. The kiosk binary backs it
// with an ffplay process; tests leave it nil and only exercise scheduling.
type Sink interface {
	Write(p []byte) error
	Reset() error
}

// PlayerConfig configures a Player.
type PlayerConfig struct {
	Sink Sink

	// Now overrides the playback clock. Nil means time.Now.
	Now func() time.Time

	// OnSpeaking fires when the active set becomes non-empty, OnIdle when it
	// drains. Both are invoked without the player lock held.
	OnSpeaking func()
	OnIdle     func()

	// OnError receives sink write failures. Playback continues; a corrupt or
	// unwritable chunk never terminates the session.
	OnError func(error)
}

type scheduledUnit struct {
	id         int64
	generation int64
	start      *time.Timer
	done       *time.Timer
}

// Player schedules inbound audio buffers for gapless sequential playback.
// Each buffer starts at max(nextStart, now) regardless of arrival jitter, so
// back-to-back chunks never overlap and never leave a gap. Every scheduled
// unit owns its own completion handling; no loop polls for finished buffers.
type Player struct {
	cfg PlayerConfig

	mu         sync.Mutex
	generation int64
	nextStart  time.Time
	nextID     int64
	active     map[int64]*scheduledUnit
}

// NewPlayer returns a stopped, empty player.
func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Player{
		cfg:    cfg,
		active: make(map[int64]*scheduledUnit),
	}
}

// SetStateHooks replaces the speaking and idle callbacks. Call before any
// audio is scheduled; the hooks must not call back into the player.
func (p *Player) SetStateHooks(onSpeaking, onIdle func()) {
	p.mu.Lock()
	p.cfg.OnSpeaking = onSpeaking
	p.cfg.OnIdle = onIdle
	p.mu.Unlock()
}

// Schedule queues buf behind any currently scheduled audio and returns its
// start time.
func (p *Player) Schedule(buf *Buffer) time.Time {
	if buf == nil || len(buf.Data) == 0 {
		return time.Time{}
	}

	p.mu.Lock()
	now := p.cfg.Now()
	start := now
	if p.nextStart.After(start) {
		start = p.nextStart
	}
	p.nextStart = start.Add(buf.Duration)

	p.nextID++
	unit := &scheduledUnit{id: p.nextID, generation: p.generation}
	p.active[unit.id] = unit
	firstUnit := len(p.active) == 1

	data := buf.Data
	unit.start = time.AfterFunc(start.Sub(now), func() {
		p.emitAudio(unit, data)
	})
	unit.done = time.AfterFunc(p.nextStart.Sub(now), func() {
		p.complete(unit)
	})
	p.mu.Unlock()

	if firstUnit && p.cfg.OnSpeaking != nil {
		p.cfg.OnSpeaking()
	}
	return start
}

// emitAudio writes the unit's bytes to the sink once its start time arrives.
// A unit scheduled before a Stop must stay silent afterwards.
func (p *Player) emitAudio(unit *scheduledUnit, data []byte) {
	p.mu.Lock()
	stale := unit.generation != p.generation
	sink := p.cfg.Sink
	p.mu.Unlock()

	if stale || sink == nil {
		return
	}
	if err := sink.Write(data); err != nil && p.cfg.OnError != nil {
		p.cfg.OnError(err)
	}
}

func (p *Player) complete(unit *scheduledUnit) {
	p.mu.Lock()
	if unit.generation != p.generation {
		p.mu.Unlock()
		return
	}
	delete(p.active, unit.id)
	drained := len(p.active) == 0
	p.mu.Unlock()

	if drained && p.cfg.OnIdle != nil {
		p.cfg.OnIdle()
	}
}

// Active reports the number of in-flight scheduled buffers.
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Stop cancels all scheduled playback, resets the playback clock, and flushes
// the sink. Safe to call repeatedly; timers that already fired detect the
// generation bump and no-op.
func (p *Player) Stop() {
	p.mu.Lock()
	p.generation++
	p.nextStart = time.Time{}
	for id, unit := range p.active {
		if unit.start != nil {
			unit.start.Stop()
		}
		if unit.done != nil {
			unit.done.Stop()
		}
		delete(p.active, id)
	}
	sink := p.cfg.Sink
	p.mu.Unlock()

	if sink != nil {
		if err := sink.Reset(); err != nil && p.cfg.OnError != nil {
			p.cfg.OnError(err)
		}
	}
}
