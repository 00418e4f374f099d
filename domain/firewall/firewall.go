package firewall

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/Murilovisque/logs/v3"
)

const DefaultCommandTimeout = 10 * time.Second

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Mode string

const (
	ModeAdd    Mode = "add"
	ModeRemove Mode = "remove"
)

// ErrTimeout is returned when the firewall command exceeds the configured
// execution bound.
var ErrTimeout = errors.New("firewall command timed out")

// CommandError carries the stderr of a failed firewall command. The executor
// never retries; retry policy belongs to the caller.
type CommandError struct {
	Stderr string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("firewall command failed: %s", e.Stderr)
}

// Executor applies a single DROP rule change for one traffic direction.
type Executor interface {
	Apply(direction Direction, mode Mode, ip net.IP) error
}

// IPTables runs the iptables binary in a separate process. Inbound rules
// match the source address on the INPUT chain, outbound rules the destination
// address on the OUTPUT chain.
type IPTables struct {
	path    string
	timeout time.Duration
	run     func(ctx context.Context, path string, args ...string) ([]byte, error)
	logger  logs.Logger
}

func NewIPTables(path string, timeout time.Duration) *IPTables {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &IPTables{
		path:    path,
		timeout: timeout,
		run:     runCommand,
		logger:  logs.NewChildLogger(logs.FixedFieldValue("executor", "iptables")),
	}
}

func (e *IPTables) Apply(direction Direction, mode Mode, ip net.IP) error {
	if ip == nil {
		return fmt.Errorf("executor received a nil IP")
	}
	// never touch loopback, whatever the caller asked for
	if ip.IsLoopback() {
		return fmt.Errorf("refusing to change rules for loopback address '%s'", ip)
	}
	args := ruleArgs(direction, mode, ip)
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	out, err := e.run(ctx, e.path, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.logger.Errorf("command exceeded %v: %s %s", e.timeout, e.path, strings.Join(args, " "))
			return ErrTimeout
		}
		stderr := strings.TrimSpace(string(out))
		e.logger.Errorf("command failed: %s %s. Error: %s", e.path, strings.Join(args, " "), stderr)
		return &CommandError{Stderr: stderr}
	}
	e.logger.Infof("rule applied: %s %s", e.path, strings.Join(args, " "))
	return nil
}

func ruleArgs(direction Direction, mode Mode, ip net.IP) []string {
	action := "-A"
	if mode == ModeRemove {
		action = "-D"
	}
	if direction == DirectionInbound {
		return []string{action, "INPUT", "-s", ip.String(), "-j", "DROP"}
	}
	return []string{action, "OUTPUT", "-d", ip.String(), "-j", "DROP"}
}

func runCommand(ctx context.Context, path string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, path, args...).CombinedOutput()
}
