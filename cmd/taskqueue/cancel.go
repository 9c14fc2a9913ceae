package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/basket/taskqueue/internal/audit"
	"github.com/basket/taskqueue/internal/config"
	"github.com/basket/taskqueue/internal/manager"
	"github.com/basket/taskqueue/internal/store"
)

func runCancelCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: taskqueue cancel <task-id>")
		return 2
	}
	taskID := fs.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}
	s := store.NewRedisStoreWithPassword(cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB, nil)
	defer s.Close()
	mgr := manager.New(s, manager.WithPrefix(cfg.Store.Prefix), manager.WithDefaultExpires(cfg.DefaultTaskExpires()))

	t, _ := mgr.GetTask(ctx, taskID)

	cancelled, err := mgr.CancelTask(ctx, taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cancel: %v\n", err)
		return 1
	}
	if !cancelled {
		fmt.Fprintf(os.Stderr, "task %s was not pending (already running, completed, or unknown)\n", taskID)
		return 1
	}

	if err := audit.Init(cfg.HomeDir); err == nil {
		channel, function := "", ""
		if t != nil {
			channel, function = t.Channel, t.Function
		}
		audit.Record(audit.EventCancelled, taskID, channel, function, "", "")
		audit.Close()
	}

	fmt.Printf("task %s cancelled\n", taskID)
	return 0
}
