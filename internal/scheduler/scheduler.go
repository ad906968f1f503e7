package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// JobType tells a job why it was started
type JobType int

const (
	JobTypeDaily JobType = iota
	JobTypeStartup
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeDaily:
		return "daily"
	case JobTypeStartup:
		return "startup"
	default:
		return "unknown"
	}
}

// Job runs one pipeline pass
type Job func(ctx context.Context, jobType JobType) error

// Scheduler runs a job once a day at a fixed local time. Runs never overlap.
type Scheduler struct {
	job        Job
	hour       int
	minute     int
	runOnStart bool
	logger     *logrus.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
	jobMutex sync.Mutex // Ensures sequential job execution
	lastDay  string     // date of the last daily trigger
	now      func() time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(job Job, hour, minute int, runOnStart bool, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		job:        job,
		hour:       hour,
		minute:     minute,
		runOnStart: runOnStart,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	if s.runOnStart {
		s.runJob(JobTypeStartup)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.executeScheduledJobs(s.now())
		}
	}
}

// executeScheduledJobs runs the daily job if t is its scheduled minute
func (s *Scheduler) executeScheduledJobs(t time.Time) {
	s.logger.WithFields(logrus.Fields{
		"hour":   t.Hour(),
		"minute": t.Minute(),
	}).Debug("Checking scheduled jobs")

	if !s.isDue(t) {
		return
	}
	s.lastDay = t.Format("2006-01-02")
	s.runJob(JobTypeDaily)
}

// isDue reports whether t falls in the scheduled minute of a day that has
// not been triggered yet.
func (s *Scheduler) isDue(t time.Time) bool {
	if t.Hour() != s.hour || t.Minute() != s.minute {
		return false
	}
	return s.lastDay != t.Format("2006-01-02")
}

// runJob runs the job unless another run is still in progress.
func (s *Scheduler) runJob(jobType JobType) {
	if !s.jobMutex.TryLock() {
		s.logger.WithField("job_type", jobType.String()).Warn("Previous run still in progress, skipping")
		return
	}
	defer s.jobMutex.Unlock()

	s.logger.WithField("job_type", jobType.String()).Info("Starting scheduled run")
	if err := s.job(s.ctx, jobType); err != nil {
		s.logger.WithError(err).WithField("job_type", jobType.String()).Error("Scheduled run failed")
		return
	}
	s.logger.WithField("job_type", jobType.String()).Info("Scheduled run completed successfully")
}

// Stop cancels a run in progress and waits for the scheduler to exit
func (s *Scheduler) Stop() {
	s.cancel()
	close(s.stopChan)
	s.wg.Wait()
}
