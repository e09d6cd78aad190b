package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron           *cron.Cron
	publisher      Publisher
	auditSvc       *AuditService
	auditRetention time.Duration
	logger         *logrus.Logger
}

// NewCronService creates a new CronService. Schedules are evaluated in loc so "midnight" is the
// site's midnight, the same boundary todayTapIn uses.
func NewCronService(publisher Publisher, auditSvc *AuditService, auditRetentionDays int, loc *time.Location, logger *logrus.Logger) *CronService {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(loc))

	return &CronService{
		cron:           c,
		publisher:      publisher,
		auditSvc:       auditSvc,
		auditRetention: time.Duration(auditRetentionDays) * 24 * time.Hour,
		logger:         logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: day rollover at 00:00:00, dashboards refetch so todayTapIn resets
	// Cron format: second minute hour day month weekday
	if _, err := s.cron.AddFunc("0 0 0 * * *", s.dayRolloverJob); err != nil {
		return fmt.Errorf("failed to schedule day rollover job: %w", err)
	}
	s.logger.Info("Scheduled: day rollover broadcast (daily at 00:00)")

	// Job 2: scan audit retention at 03:00
	if s.auditSvc != nil && s.auditRetention > 0 {
		if _, err := s.cron.AddFunc("0 0 3 * * *", s.cleanupAuditLogsJob); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup job: %w", err)
		}
		s.logger.WithField("retention", s.auditRetention).Info("Scheduled: scan audit cleanup (daily at 03:00)")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) dayRolloverJob() {
	s.logger.Info("[CRON] Day rollover, broadcasting dashboard_update")
	s.publisher.PublishDashboardUpdate()
}

func (s *CronService) cleanupAuditLogsJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := s.auditSvc.CleanupOldAuditLogs(ctx, s.auditRetention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to cleanup scan audit logs")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"deleted":  n,
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] Scan audit cleanup done")
}
