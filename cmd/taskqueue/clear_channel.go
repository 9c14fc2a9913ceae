package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/basket/taskqueue/internal/config"
	"github.com/basket/taskqueue/internal/manager"
	"github.com/basket/taskqueue/internal/store"
)

func runClearChannelCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("clear-channel", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: taskqueue clear-channel <name>")
		return 2
	}
	channel := fs.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}
	s := store.NewRedisStoreWithPassword(cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB, nil)
	defer s.Close()
	mgr := manager.New(s, manager.WithPrefix(cfg.Store.Prefix), manager.WithDefaultExpires(cfg.DefaultTaskExpires()))

	if err := mgr.ClearChannel(ctx, channel); err != nil {
		fmt.Fprintf(os.Stderr, "clear-channel: %v\n", err)
		return 1
	}
	fmt.Printf("channel %s cleared (pending, running, completed, and error queues dropped)\n", channel)
	return 0
}
