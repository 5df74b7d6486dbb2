package logx

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Notifier delivers one plain-text log line to the operator chat.
// Implementations must not block for long; the sink already queues.
type Notifier func(text string)

// telegramSink forwards log lines at or above a minimum level to the
// operator chat. It never blocks the logging hot path: lines are queued and
// dropped when the queue is full, and delivery is rate limited.
type telegramSink struct {
	mu       sync.Mutex
	notify   Notifier
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue    chan string
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func newTelegramSink(notify Notifier) *telegramSink {
	s := &telegramSink{
		notify:   notify,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
		queue:    make(chan string, 128),
		stop:     make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	return s
}

func (s *telegramSink) setNotifier(n Notifier) {
	s.mu.Lock()
	s.notify = n
	s.mu.Unlock()
}

func (s *telegramSink) apply(cfg TelegramConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

func (s *telegramSink) close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *telegramSink) run() {
	for {
		select {
		case <-s.stop:
			return
		case line := <-s.queue:
			s.mu.Lock()
			n := s.notify
			s.mu.Unlock()
			if n != nil {
				n(line)
			}
		}
	}
}

func (s *telegramSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.InfoLevel, p)
}

func (s *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s.mu.Lock()
	min := s.minLevel
	lim := s.limiter
	hasNotify := s.notify != nil
	s.mu.Unlock()

	if !hasNotify || level < min || !lim.Allow() {
		return len(p), nil
	}

	line := formatChatLine(p)
	if line == "" {
		return len(p), nil
	}
	select {
	case s.queue <- line:
	default:
		// drop
	}
	return len(p), nil
}

// formatChatLine renders a zerolog JSON line as compact chat text.
func formatChatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(lvl))
		b.WriteString("] ")
	}
	b.WriteString(msg)
	for k, v := range m {
		switch k {
		case "time", "level", "message", "caller":
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(v), 600))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
