package sweeper

import (
	"sync"
	"time"

	"github.com/Murilovisque/logs/v3"
)

type State string

const (
	StateIdle     State = "idle"
	StateSweeping State = "sweeping"
)

// Pruner is the lifecycle manager handle the sweeper drives on every tick.
type Pruner interface {
	PruneExpired(now time.Time) int
}

// Sweeper is the recurring expiry task: a fixed ticker, no external trigger,
// running for the whole process lifetime. One sweeper is constructed per
// process and owns its timer.
type Sweeper struct {
	pruner   Pruner
	interval time.Duration

	state        State
	stateMu      sync.Mutex
	chStopSignal chan bool
	chStopped    chan bool
	logger       logs.Logger
}

func New(pruner Pruner, interval time.Duration) *Sweeper {
	return &Sweeper{
		pruner:       pruner,
		interval:     interval,
		state:        StateIdle,
		chStopSignal: make(chan bool),
		chStopped:    make(chan bool),
		logger:       logs.NewChildLogger(logs.FixedFieldValue("component", "sweeper")),
	}
}

func (s *Sweeper) Start() error {
	go func() {
		s.logger.Infof("expiry sweeper started, interval %v", s.interval)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.chStopSignal:
				s.chStopped <- true
				return
			}
		}
	}()
	return nil
}

// sweep runs one cycle. Whatever goes wrong is logged and absorbed; a failed
// sweep never stops the schedule.
func (s *Sweeper) sweep() {
	s.setState(StateSweeping)
	defer s.setState(StateIdle)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("sweep aborted: %v", r)
		}
	}()
	pruned := s.pruner.PruneExpired(time.Now())
	if pruned > 0 {
		s.logger.Infof("sweep reversed %d expired block(s)", pruned)
	}
}

func (s *Sweeper) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Sweeper) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

func (s *Sweeper) StopAndWait() error {
	s.chStopSignal <- true
	close(s.chStopSignal)
	<-s.chStopped
	close(s.chStopped)
	s.logger.Info("expiry sweeper stopped")
	return nil
}
