package monitor

import (
	"time"
)

// Config describes one tail-file monitor; the regex capture groups are the
// addresses to block.
type Config struct {
	Name       string
	File       string
	Regex      string
	Violations []ViolationConfig
}

type ViolationConfig struct {
	OccurenceDuration string
	PenaltyLimit      uint
}

// Blocker receives the addresses of offenders. Implemented by the lifecycle
// manager.
type Blocker interface {
	Block(ip string) bool
}

type Monitor interface {
	GetName() string
	Start() error
	StopAndWait() error
}

type violationMonit struct {
	occurenceDuration time.Duration
	penaltyLimit      uint
	count             uint
	lastViolation     time.Time
}

func (vm *violationMonit) increment(moment time.Time) {
	if vm.lastViolation.Add(vm.occurenceDuration).After(moment) {
		vm.count++
	} else {
		vm.count = 1
	}
	vm.lastViolation = moment
}

func (vm *violationMonit) isAchieved() bool {
	return vm.count >= vm.penaltyLimit
}
