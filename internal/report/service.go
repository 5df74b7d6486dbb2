// Package report pushes a periodic roster stats summary to the operator
// chat on a cron schedule. Disabled unless a schedule is configured.
package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"vidbot/internal/roster"
	"vidbot/internal/transport"
	logx "vidbot/pkg/logx"
)

type Service struct {
	adapter  transport.Adapter
	roster   *roster.Roster
	operator transport.ChatTarget
	log      logx.Logger

	mu   sync.Mutex
	cron *cron.Cron
	spec string
}

func New(adapter transport.Adapter, r *roster.Roster, operator transport.ChatTarget, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{adapter: adapter, roster: r, operator: operator, log: log}
}

// Apply swaps the schedule at runtime. An empty spec stops the report; an
// invalid spec is rejected and the previous schedule stays in effect.
func (s *Service) Apply(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec == s.spec {
		return nil
	}
	if spec == "" {
		s.stopLocked()
		s.spec = ""
		s.log.Info("stats report disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, s.send); err != nil {
		return fmt.Errorf("report.schedule: invalid cron spec %q: %w", spec, err)
	}

	s.stopLocked()
	s.cron = c
	s.spec = spec
	c.Start()
	s.log.Info("stats report scheduled", logx.String("spec", spec))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.spec = ""
}

func (s *Service) stopLocked() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Service) send() {
	total, active, blocked := s.roster.Stats()
	text := fmt.Sprintf(
		"📊 Bot Statistics\n\n👥 Total Users: %d\n✅ Active: %d\n🚫 Blocked: %d",
		total, active, blocked,
	)
	if _, err := s.adapter.SendText(context.Background(), s.operator, text, nil); err != nil {
		s.log.Warn("stats report send failed", logx.Err(err))
	}
}
