// Package scheduler runs the three proactive care jobs (C9): a
// sedentary-reminder interval job, and cron-scheduled morning/evening
// greetings. Grounded on original_source/care/scheduler.py's
// AsyncIOScheduler job registration (start/_sedentary_reminder/
// _morning_greeting/_evening_greeting).
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/wallace/internal/external"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	defaultSedentaryInterval = 2 * time.Hour
	defaultMorningTime       = "07:30"
	defaultEveningTime       = "22:00"

	sedentaryMood = "caring"
	morningMood   = "happy"
	eveningMood   = "gentle"

	sedentaryPrompt = "主人已经坐了很久了，提醒他活动一下"
	eveningPrompt   = "夜深了，提醒主人早点休息"
)

// Pusher is the subset of push.Coordinator the scheduler needs, kept
// as an interface so tests can substitute a recorder.
type Pusher interface {
	PushAll(ctx context.Context, prompt, mood string)
}

// Config tunes the three job schedules.
type Config struct {
	SedentaryInterval time.Duration
	MorningTime       string // "HH:MM"
	EveningTime       string // "HH:MM"
}

func (c Config) withDefaults() Config {
	if c.SedentaryInterval <= 0 {
		c.SedentaryInterval = defaultSedentaryInterval
	}
	if c.MorningTime == "" {
		c.MorningTime = defaultMorningTime
	}
	if c.EveningTime == "" {
		c.EveningTime = defaultEveningTime
	}
	return c
}

// Scheduler owns the three care jobs and the cron engine driving them.
type Scheduler struct {
	cfg     Config
	pusher  Pusher
	weather external.Weather
	logger  *zap.Logger
	cron    *cron.Cron
}

func New(cfg Config, pusher Pusher, weather external.Weather, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		pusher:  pusher,
		weather: weather,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start registers and starts all three jobs. It returns an error only
// for a malformed configured time; once started, jobs fire in their own
// goroutines managed by the cron engine.
func (s *Scheduler) Start() error {
	morningSpec, err := cronSpecFromClock(s.cfg.MorningTime)
	if err != nil {
		return fmt.Errorf("morning_time: %w", err)
	}
	eveningSpec, err := cronSpecFromClock(s.cfg.EveningTime)
	if err != nil {
		return fmt.Errorf("evening_time: %w", err)
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.SedentaryInterval), s.sedentaryReminder); err != nil {
		return fmt.Errorf("sedentary job: %w", err)
	}
	if _, err := s.cron.AddFunc(morningSpec, s.morningGreeting); err != nil {
		return fmt.Errorf("morning job: %w", err)
	}
	if _, err := s.cron.AddFunc(eveningSpec, s.eveningGreeting); err != nil {
		return fmt.Errorf("evening job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("care scheduler started",
		zap.Duration("sedentary_interval", s.cfg.SedentaryInterval),
		zap.String("morning_time", s.cfg.MorningTime),
		zap.String("evening_time", s.cfg.EveningTime),
	)
	return nil
}

// Stop shuts the cron engine down without waiting for in-flight pushes,
// matching the original's shutdown(wait=False).
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) sedentaryReminder() {
	s.pusher.PushAll(context.Background(), sedentaryPrompt, sedentaryMood)
}

func (s *Scheduler) morningGreeting() {
	weather := ""
	if s.weather != nil {
		weather = s.weather.Now(context.Background())
	}
	prompt := fmt.Sprintf("早上好！今天的天气：%s。生成一句元气满满的早安问候。", weather)
	s.pusher.PushAll(context.Background(), prompt, morningMood)
}

func (s *Scheduler) eveningGreeting() {
	s.pusher.PushAll(context.Background(), eveningPrompt, eveningMood)
}

// cronSpecFromClock converts "HH:MM" into a 5-field cron spec firing
// once a day at that minute/hour.
func cronSpecFromClock(clock string) (string, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("expected HH:MM, got %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", clock)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
