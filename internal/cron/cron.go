// Package cron schedules the periodic maintenance jobs: the backlog re-sweep
// and the attachment retention purge.
package cron

import (
	"context"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/techmailbox/shipmail/config"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/logger"
	"github.com/techmailbox/shipmail/internal/tracing"
)

// GroupMailbox serializes jobs that touch the mailbox session.
const GroupMailbox = "mailbox"

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupMailbox: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg     *config.Config
	log     logger.Logger
	session interfaces.IMAPSession
	store   interfaces.AttachmentStore
	cron    *cronv3.Cron
	jobIDs  map[string]cronv3.EntryID
}

func NewCronManager(cfg *config.Config, log logger.Logger, session interfaces.IMAPSession, store interfaces.AttachmentStore) *CronManager {
	return &CronManager{
		cfg:     cfg,
		log:     log,
		session: session,
		store:   store,
		jobIDs:  make(map[string]cronv3.EntryID),
	}
}

// Start initializes and starts the cron scheduler.
func (cm *CronManager) Start() {
	cm.log.Info("Starting cron manager")
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the scheduler and waits for running jobs.
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	if schedule := cm.cfg.Cron.BacklogSweepSchedule; schedule != "" {
		id, err := c.AddFunc(schedule, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMailbox].Lock()
			defer jobLocks.locks[GroupMailbox].Unlock()
			cm.sweepBacklog()
		})
		if err != nil {
			cm.log.Fatalf("Could not add backlog sweep cron job: %v", err)
		}
		cm.jobIDs["backlog_sweep"] = id
		cm.log.Infof("Registered backlog sweep job with schedule: %s", schedule)
	}

	if schedule := cm.cfg.Cron.RetentionSchedule; schedule != "" {
		id, err := c.AddFunc(schedule, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.purgeAttachments()
		})
		if err != nil {
			cm.log.Fatalf("Could not add retention cron job: %v", err)
		}
		cm.jobIDs["attachment_retention"] = id
		cm.log.Infof("Registered attachment retention job with schedule: %s", schedule)
	}
}

// sweepBacklog re-drains unseen messages, picking up anything a failed
// mark-as-read left behind.
func (cm *CronManager) sweepBacklog() {
	if cm.session.State() != interfaces.SessionReady {
		cm.log.Infof("Skipping backlog sweep, session is %s", cm.session.State())
		return
	}

	ctx := context.Background()
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.sweepBacklog")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.session.SweepBacklog(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Scheduled backlog sweep failed: %v", err)
		return
	}
	cm.log.Info("Scheduled backlog sweep completed")
}

func (cm *CronManager) purgeAttachments() {
	span, _ := tracing.StartTracerSpan(context.Background(), "CronManager.purgeAttachments")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	retention := time.Duration(cm.cfg.Attachments.RetentionDays) * 24 * time.Hour
	removed, err := cm.store.PurgeOlderThan(retention)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Attachment retention purge failed: %v", err)
		return
	}
	if removed > 0 {
		cm.log.Infof("Attachment retention purge removed %d directory(ies)", removed)
	}
}
