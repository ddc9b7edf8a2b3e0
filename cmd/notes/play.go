package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-notes/internal/playback"
)

func runPlay(args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	start := fs.Duration("start", 0, "Start offset")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: notes play [flags] <file.wav>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(*verbose)

	session := playback.NewSession(playback.NewTimelinePlayer(), playback.Options{
		PollInterval: time.Duration(cfg.Playback.PollIntervalMS) * time.Millisecond,
		EndThreshold: time.Duration(cfg.Playback.EndThresholdMS) * time.Millisecond,
		Logger:       logger,
	})
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Load(ctx, fs.Arg(0)); err != nil {
		return err
	}
	if *start > 0 {
		if err := session.SeekTo(start.Milliseconds()); err != nil {
			return err
		}
	}

	states, unsubscribe := session.Watch(8)
	defer unsubscribe()
	if err := session.Play(); err != nil {
		return err
	}

	played := false
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return session.Release()
		case st := <-states:
			pos, dur := playback.Position(st)
			switch st.(type) {
			case playback.Playing:
				played = true
				fmt.Fprintf(os.Stderr, "%s▶ %s / %s", clearLine(), clockMs(pos), clockMs(dur))
			case playback.Paused:
				if played {
					fmt.Fprintf(os.Stderr, "%s■ %s\n", clearLine(), clockMs(dur))
					return session.Release()
				}
			}
		}
	}
}
