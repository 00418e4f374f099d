package monitor

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Murilovisque/logs/v3"
	"github.com/nxadm/tail"
)

func NewTailFileMonitor() *TailFileMonitor {
	return &TailFileMonitor{
		chStopSignal: make(chan bool),
		chStopped:    make(chan bool),
	}
}

type TailFileMonitor struct {
	name            string
	tailedFile      *tail.Tail
	regex           *regexp.Regexp
	violationsMonit []*violationMonit
	blocker         Blocker
	chStopSignal    chan bool
	chStopped       chan bool
	logger          logs.Logger
}

func (tm *TailFileMonitor) GetName() string {
	return tm.name
}

func (tm *TailFileMonitor) SetBlocker(b Blocker) {
	tm.blocker = b
}

func (tm *TailFileMonitor) DecodeConfig(c Config) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("monitor with empty name")
	}
	var err error
	tm.tailedFile, err = tail.TailFile(c.File, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location: &tail.SeekInfo{
			Offset: 0,
			Whence: io.SeekEnd,
		},
	})
	if err != nil {
		return fmt.Errorf("monitor '%s', fail to tail the file '%s'. Error: %w", c.Name, c.File, err)
	}
	tm.regex, err = regexp.Compile(c.Regex)
	if err != nil {
		return fmt.Errorf("monitor '%s', invalid regex '%s'", c.Name, c.Regex)
	}
	if len(c.Violations) == 0 {
		return fmt.Errorf("monitor '%s', empty violations settings", c.Name)
	}
	var vms []*violationMonit
	for _, v := range c.Violations {
		if v.PenaltyLimit < 1 {
			return fmt.Errorf("monitor '%s', penalty limit value must be greater than zero", c.Name)
		}
		od, err := time.ParseDuration(v.OccurenceDuration)
		if err != nil {
			return fmt.Errorf("monitor '%s', invalid occurence duration format %s", c.Name, v.OccurenceDuration)
		}
		vms = append(vms, &violationMonit{occurenceDuration: od, penaltyLimit: v.PenaltyLimit})
	}
	tm.violationsMonit = vms
	tm.name = c.Name
	tm.logger = logs.NewChildLogger(logs.FixedFieldValue("monitor", tm.name))
	tm.logger.Info("tail monitor config loaded")
	return nil
}

func (tm *TailFileMonitor) Start() error {
	go func() {
		tm.logger.Info("tail file monitor started")
		for {
			select {
			case line := <-tm.tailedFile.Lines:
				matchStrings := tm.regex.FindStringSubmatch(line.Text)
				if len(matchStrings) > 0 {
					if len(matchStrings) > 1 { // there are groups in regex, getting only groups
						matchStrings = matchStrings[1:]
					}
					now := time.Now()
					for _, vm := range tm.violationsMonit {
						vm.increment(now)
						if vm.isAchieved() {
							tm.blockOffenders(matchStrings)
						}
					}
				}
			case <-tm.chStopSignal:
				tm.chStopped <- true
				return
			}
		}
	}()
	return nil
}

func (tm *TailFileMonitor) blockOffenders(addresses []string) {
	if tm.blocker == nil {
		return
	}
	for _, ip := range addresses {
		if tm.blocker.Block(ip) {
			tm.logger.Infof("offender '%s' blocked", ip)
		} else {
			tm.logger.Errorf("offender '%s' block incomplete", ip)
		}
	}
}

func (tm *TailFileMonitor) StopAndWait() error {
	tm.chStopSignal <- true
	close(tm.chStopSignal)
	<-tm.chStopped
	close(tm.chStopped)
	return tm.tailedFile.Stop()
}
