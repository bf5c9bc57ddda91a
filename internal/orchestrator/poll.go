package orchestrator

import (
	"time"

	"github.com/shipsure/shipsure/config"
)

// PollPolicy is a bounded retry policy: re-run a check on a fixed interval
// until it reports done or a hard ceiling elapses. Clock and sleeper are
// injectable so the waiting phase is testable without real sleeps.
type PollPolicy struct {
	MaxWait  time.Duration
	Interval time.Duration
	Now      func() time.Time
	Sleep    func(d time.Duration)
}

// DefaultPollPolicy waits up to 15 minutes, checking every minute. Both
// bounds can be overridden through the environment.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		MaxWait:  config.GetEnvDuration(config.EnvPollMaxWait, 15*time.Minute),
		Interval: config.GetEnvDuration(config.EnvPollInterval, time.Minute),
		Now:      time.Now,
		Sleep:    time.Sleep,
	}
}

// Wait invokes check with the elapsed wait time until it returns true or the
// ceiling is reached. The first check happens immediately. Wait always
// returns at or before MaxWait; it never guarantees the check succeeded.
func (p PollPolicy) Wait(check func(elapsed time.Duration) bool) {
	start := p.Now()
	for {
		if check(p.Now().Sub(start)) {
			return
		}
		if p.Now().Sub(start)+p.Interval > p.MaxWait {
			return
		}
		p.Sleep(p.Interval)
	}
}
