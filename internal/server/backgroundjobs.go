package server

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/internal/repeat"
	"github.com/gristips/gristips/internal/server/data"
)

const sessionCleanupInterval = 10 * time.Minute

// BackgroundJobFunc is the interface for implementing a new background job.
//
// currentTime is the time the job was invoked at, and should be used for
// segmenting records into processable chunks.
//
// errors will be logged but will not cause the app to crash.
//
// panics will be caught and logged
type BackgroundJobFunc func(ctx context.Context, db *gorm.DB, currentTime time.Time) error

func (s *Server) setupBackgroundJobs() {
	s.registerJob("remove-expired-sessions", removeExpiredSessions, sessionCleanupInterval)
}

func (s *Server) registerJob(name string, job BackgroundJobFunc, every time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())

	s.routines = append(s.routines, routine{
		run: func() error {
			// wait for a run in progress to finish before the database is closed
			<-repeat.Start(ctx, every, jobWrapper(name, s.db, job))
			return nil
		},
		stop: cancel,
	})
}

func jobWrapper(name string, db *gorm.DB, job BackgroundJobFunc) func(context.Context) {
	return func(ctx context.Context) {
		defer func() {
			if err := recover(); err != nil {
				logging.Errorf("background job %s panic: %s", name, err)
			}
		}()

		startAt := time.Now().UTC()
		logging.Debugf("background job %s starting", name)

		if err := job(ctx, db.WithContext(ctx), startAt); err != nil {
			logging.Errorf("background job %s error: %s", name, err.Error())
			return
		}
		logging.Debugf("background job %s successful, elapsed: %s", name, time.Since(startAt))
	}
}

func removeExpiredSessions(_ context.Context, db *gorm.DB, now time.Time) error {
	count, err := data.DeleteExpiredSessions(db, now)
	if err != nil {
		return err
	}
	if count > 0 {
		logging.Infof("removed %d expired sessions", count)
	}
	return nil
}
