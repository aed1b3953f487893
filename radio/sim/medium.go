// Package sim is an in-memory radio channel. Radios attached to one Medium
// hear each other when they share frequency, sync word and rate, with
// transmissions taking their real airtime.
package sim

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"radiolink/radio"
)

const (
	// DefaultNoiseFloor is the channel energy with nobody transmitting
	DefaultNoiseFloor int8 = -110

	// DefaultTurnaround is the transmitter ramp-up before the first bit
	DefaultTurnaround = 500 * time.Microsecond
)

// LossFunc decides whether to drop frame on its way from one radio to another
type LossFunc func(from, to string, frame []byte) bool

// Stats counts medium activity
type Stats struct {
	Frames     uint64
	Delivered  uint64
	Collisions uint64
	Lost       uint64
}

// Medium is a shared radio channel
type Medium struct {
	mu         sync.Mutex
	log        *zap.Logger
	radios     []*Radio
	onAir      []*transmission
	loss       LossFunc
	noise      int8
	turnaround time.Duration
	epoch      time.Time
	stats      Stats
}

type transmission struct {
	from      *Radio
	frame     []byte
	corrupted bool
	listeners []listener
}

type listener struct {
	r *Radio
	w *window
}

// NewMedium creates an empty channel. A nil logger discards output.
func NewMedium(log *zap.Logger) *Medium {
	if log == nil {
		log = zap.NewNop()
	}
	return &Medium{
		log:        log.Named("sim"),
		noise:      DefaultNoiseFloor,
		turnaround: DefaultTurnaround,
		epoch:      time.Now(),
	}
}

// SetLoss installs a drop decision applied to every delivery
func (m *Medium) SetLoss(f LossFunc) {
	m.mu.Lock()
	m.loss = f
	m.mu.Unlock()
}

// SetNoiseFloor sets the idle channel energy
func (m *Medium) SetNoiseFloor(dbm int8) {
	m.mu.Lock()
	m.noise = dbm
	m.mu.Unlock()
}

// SetTurnaround sets the delay between a send request and the first bit
func (m *Medium) SetTurnaround(d time.Duration) {
	m.mu.Lock()
	m.turnaround = d
	m.mu.Unlock()
}

// Stats returns a snapshot of the counters
func (m *Medium) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// NewRadio attaches a radio. Other radios hear it at rssi dBm.
func (m *Medium) NewRadio(name string, rssi int8) *Radio {
	r := &Radio{m: m, name: name, rssi: rssi}
	m.mu.Lock()
	m.radios = append(m.radios, r)
	m.mu.Unlock()
	return r
}

func (m *Medium) now() uint32 {
	return uint32(time.Since(m.epoch) / time.Microsecond)
}

// energy returns what r reads on its channel right now
func (m *Medium) energy(r *Radio) int8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	level := m.noise
	for _, tx := range m.onAir {
		if tx.from != r && tx.from.hears(r) && tx.from.rssi > level {
			level = tx.from.rssi
		}
	}
	return level
}

func (m *Medium) transmit(r *Radio, frame []byte) {
	m.mu.Lock()
	tx := &transmission{from: r, frame: frame}
	for _, other := range m.onAir {
		if other.from.hears(r) {
			other.corrupted = true
			tx.corrupted = true
			m.stats.Collisions++
		}
	}
	for _, l := range m.radios {
		if l == r || !r.hears(l) {
			continue
		}
		if w := l.listen(); w != nil {
			tx.listeners = append(tx.listeners, listener{r: l, w: w})
		}
	}
	m.onAir = append(m.onAir, tx)
	m.stats.Frames++
	airtime := time.Duration(radio.AirtimeUS(len(frame), r.baud())) * time.Microsecond
	m.mu.Unlock()

	m.log.Debug("tx start",
		zap.String("radio", r.name),
		zap.Int("bytes", len(frame)),
		zap.Duration("airtime", airtime),
		zap.Int("listeners", len(tx.listeners)))

	time.AfterFunc(airtime, func() { m.finish(tx) })
}

func (m *Medium) finish(tx *transmission) {
	m.mu.Lock()
	for i, t := range m.onAir {
		if t == tx {
			m.onAir = append(m.onAir[:i], m.onAir[i+1:]...)
			break
		}
	}
	loss := m.loss
	m.mu.Unlock()

	ts := m.now()
	for _, l := range tx.listeners {
		ok := !tx.corrupted
		if ok && loss != nil && loss(tx.from.name, l.r.name, tx.frame) {
			ok = false
		}
		delivered := l.r.receive(l.w, tx.frame, tx.from.rssi, ts, ok)

		m.mu.Lock()
		switch {
		case delivered:
			m.stats.Delivered++
		case ok:
		default:
			m.stats.Lost++
		}
		m.mu.Unlock()
	}
	if tx.corrupted {
		m.log.Debug("collision", zap.String("radio", tx.from.name))
	}
	tx.from.sent()
}
