package actions

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/logger"
	"github.com/robfig/cron/v3"
)

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.WithFields(cronFields(keysAndValues)).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithFields(cronFields(keysAndValues)).Error(msg, ": ", err)
}

func cronFields(keysAndValues []interface{}) map[string]interface{} {
	retval := make(map[string]interface{}, len(keysAndValues)/2)
	for idx := 0; idx+1 < len(keysAndValues); idx += 2 {
		retval[fmt.Sprintf("%v", keysAndValues[idx])] = keysAndValues[idx+1]
	}
	return retval
}

// scheduledDag returns the job fired by cron. A tick that finds another run in progress is skipped.
func scheduledDag(ctx context.Context, log logger.Logger, svc Service, o DagOptions) func() {
	return func() {
		done, ok := svc.TryBegin()
		if !ok {
			log.Warn("scheduled DAG run skipped: another run is in progress")
			return
		}
		defer done()
		log.Info("scheduled DAG run starting")
		rep, err := svc.RunDag(ctx, o)
		if err != nil {
			log.Error("scheduled DAG run failed: ", err)
			return
		}
		if rep.HasFailures() {
			log.Warn("scheduled DAG run finished with failures")
			return
		}
		log.Info("scheduled DAG run finished")
	}
}

func newCron(ctx context.Context, log logger.Logger, svc Service, expr string, o DagOptions) (*cron.Cron, error) {
	cl := cronLogger{log: log.WithField("component", "cron")}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(expr, scheduledDag(ctx, log, svc, o)); err != nil {
		return nil, errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	return c, nil
}

// RunSchedule runs the DAG on the cron expression until ctx is done or SIGINT is received.
func RunSchedule(ctx context.Context, log logger.Logger, svc Service, expr string, o DagOptions) error {
	c, err := newCron(ctx, log, svc, expr, o)
	if err != nil {
		return err
	}
	c.Start()
	for _, e := range c.Entries() {
		log.Info("next DAG run at ", e.Next)
	}
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt)
	defer signal.Stop(chanOS)
	select {
	case <-ctx.Done():
	case <-chanOS:
		fmt.Println()
	}
	log.Info("stopping schedule, waiting for a running DAG to finish...")
	<-c.Stop().Done()
	return nil
}
