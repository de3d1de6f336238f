package cron

import (
	"context"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs jobs on cron cadences. Tests substitute a manually driven implementation.
type Scheduler interface {
	Schedule(spec string, job func()) error
	Start()
	Stop() context.Context
}

// parser accepts standard 5-field specs, an optional leading seconds field and descriptors like @every.
var parser = robfig.NewParser(
	robfig.SecondOptional | robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow | robfig.Descriptor,
)

// ValidateSchedule reports whether spec is a usable cadence.
func ValidateSchedule(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// CronScheduler is the robfig/cron backed Scheduler. A job whose previous run
// has not finished is skipped, and a panicking job is recovered and logged.
type CronScheduler struct {
	c *robfig.Cron
}

// NewCronScheduler creates a scheduler evaluating specs in loc (UTC when nil).
func NewCronScheduler(loc *time.Location, log *zap.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	logger := cronLogger{log: log.Sugar()}
	return &CronScheduler{
		c: robfig.New(
			robfig.WithParser(parser),
			robfig.WithLocation(loc),
			robfig.WithLogger(logger),
			robfig.WithChain(robfig.Recover(logger), robfig.SkipIfStillRunning(logger)),
		),
	}
}

func (s *CronScheduler) Schedule(spec string, job func()) error {
	if _, err := s.c.AddFunc(spec, job); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	return nil
}

func (s *CronScheduler) Start() { s.c.Start() }

// Stop stops the timer; the returned context is done once running jobs finish.
func (s *CronScheduler) Stop() context.Context { return s.c.Stop() }

// cronLogger adapts zap to robfig's logger interface.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
