package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CodeGandee/invokeai-go-client/internal/scheduler"
	"github.com/CodeGandee/invokeai-go-client/internal/store"
	"github.com/CodeGandee/invokeai-go-client/pkg/client"
)

func runSchedule(args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	list := fs.Bool("list", false, "print each schedule's next fire time and exit")
	now := fs.String("now", "", "fire the named schedule immediately and exit")
	interval := fs.Duration("interval", 0, "tick cadence (default 15s, lower for second-resolution specs)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl schedule [flags] <schedules.json>

Run recurring workflow submissions from a schedule file. Without -list
or -now the scheduler runs until interrupted.

Flags:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("schedule file path is required")
	}

	schedules, err := scheduler.LoadScheduleFile(fs.Arg(0))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	c, err := a.client()
	if err != nil {
		return err
	}
	st, stErr := a.openStore(ctx)
	if stErr != nil {
		a.logger.Warn("run journal unavailable", "error", stErr)
	} else {
		defer st.Close()
	}
	journal := storeOrNil(st, stErr)

	var opts []scheduler.Option
	if *interval > 0 {
		opts = append(opts, scheduler.WithInterval(*interval))
	}
	sched, err := scheduler.New(schedules, scheduleSubmitter(a, c, journal), a.logger, opts...)
	if err != nil {
		return err
	}

	if *list {
		fmt.Printf("%-20s %-30s %s\n", "SCHEDULE", "WORKFLOW", "NEXT FIRE")
		for _, u := range sched.Upcoming() {
			fmt.Printf("%-20s %-30s %s\n", u.Name, truncate(u.Workflow, 30), u.Next.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	}
	if *now != "" {
		return sched.FireNow(ctx, *now)
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("scheduler running with %d schedule(s), interrupt to stop\n", len(schedules))
	<-ctx.Done()
	return sched.Stop()
}

// scheduleSubmitter adapts the submit pipeline to scheduler fires: load the
// export, apply the schedule's fixed values, route its board and enqueue one
// run on the schedule's queue.
func scheduleSubmitter(a *app, base *client.Client, journal store.Store) scheduler.SubmitterFunc {
	return func(ctx context.Context, sched scheduler.Schedule) error {
		c := base
		if sched.QueueID != "" && sched.QueueID != a.cfg.QueueID {
			qc, err := clientForQueue(a, sched.QueueID)
			if err != nil {
				return err
			}
			c = qc
		}

		h, err := a.loadWorkflow(sched.Workflow)
		if err != nil {
			return err
		}
		if err := applyInputMap(h, sched.Sets); err != nil {
			return err
		}
		if sched.Board != "" {
			boardID, err := resolveBoardID(ctx, c, sched.Board)
			if err != nil {
				return err
			}
			if _, err := routeBoardInputs(h, boardID); err != nil {
				return err
			}
		}

		run, err := h.Submit(ctx, c)
		if err != nil {
			return err
		}
		journalSubmission(ctx, a, journal, h, sched.Workflow, run)
		fmt.Printf("%s fired %s: batch %s item %d\n",
			time.Now().Local().Format("15:04:05"), sched.Name, run.BatchID, run.ItemID())
		return nil
	}
}

func clientForQueue(a *app, queueID string) (*client.Client, error) {
	opts := []client.Option{
		client.WithQueueID(queueID),
		client.WithLogger(a.logger),
	}
	if a.cfg.Timeout > 0 {
		opts = append(opts, client.WithTimeout(time.Duration(a.cfg.Timeout)*time.Second))
	}
	if a.cfg.APIKey != "" {
		opts = append(opts, client.WithAPIKey(a.cfg.APIKey))
	}
	return client.New(a.cfg.BaseURL, opts...)
}
