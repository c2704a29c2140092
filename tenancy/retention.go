package tenancy

import (
	"github.com/robfig/cron/v3"
)

// RetentionSweeper periodically trims the audit ring to its most recent
// keep entries, for deployments that enable the audit log but want it
// kept smaller than its capacity between GetAuditLogs polls.
type RetentionSweeper struct {
	cron *cron.Cron
	log  *AuditLog
}

// NewRetentionSweeper schedules spec to run against log's audit ring
// (standard five-field cron syntax, e.g. "0 * * * *" for hourly) and
// returns the sweeper unstarted; call Start to begin running it.
func NewRetentionSweeper(log *AuditLog, spec string, keep int) (*RetentionSweeper, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		log.mu.Lock()
		if len(log.items) > keep {
			log.items = log.items[len(log.items)-keep:]
		}
		log.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return &RetentionSweeper{cron: c, log: log}, nil
}

// Start begins running the scheduled sweep in the background.
func (s *RetentionSweeper) Start() { s.cron.Start() }

// Stop halts the scheduled sweep, waiting for any in-flight run to finish.
func (s *RetentionSweeper) Stop() { <-s.cron.Stop().Done() }
