package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/basket/taskqueue/internal/adminapi"
	"github.com/basket/taskqueue/internal/config"
	"github.com/basket/taskqueue/internal/manager"
	"github.com/basket/taskqueue/internal/store"
)

func runStatusCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	channel := fs.String("channel", "", "show status for a single channel")
	asJSON := fs.Bool("json", false, "emit JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}
	s := store.NewRedisStoreWithPassword(cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB, nil)
	defer s.Close()
	mgr := manager.New(s, manager.WithPrefix(cfg.Store.Prefix), manager.WithDefaultExpires(cfg.DefaultTaskExpires()))

	if *channel != "" {
		cs, err := adminapi.ChannelStatus(ctx, mgr, *channel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
			return 1
		}
		return printStatus(cs, *asJSON)
	}

	st, err := adminapi.Status(ctx, mgr, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	return printStatus(st, *asJSON)
}

func printStatus(v any, asJSON bool) int {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(os.Stderr, "encode status: %v\n", err)
			return 1
		}
		return 0
	}

	switch s := v.(type) {
	case manager.ChannelStatus:
		fmt.Printf("channel:   %s\n", s.Channel)
		fmt.Printf("pending:   %d\n", s.Pending)
		fmt.Printf("running:   %d\n", s.Running)
		fmt.Printf("completed: %d\n", s.Completed)
		fmt.Printf("errors:    %d\n", s.Errors)
	case manager.Status:
		fmt.Printf("pending:   %d\n", s.Pending)
		fmt.Printf("running:   %d\n", s.Running)
		fmt.Printf("completed: %d\n", s.Completed)
		fmt.Printf("errors:    %d\n", s.Errors)
		fmt.Printf("channels:  %d\n", len(s.Channels))
		for _, c := range s.Channels {
			fmt.Printf("  - %s (pending=%d running=%d)\n", c.Channel, c.Pending, c.Running)
		}
		fmt.Printf("runners:   %d\n", len(s.Runners))
		for host, r := range s.Runners {
			fmt.Printf("  - %s (active_tasks=%d)\n", host, r.ActiveTasks)
		}
	default:
		fmt.Printf("%+v\n", v)
	}
	return 0
}
