package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-notes/internal/recording"
)

// ttyPermissions asks on the controlling terminal, since stdin carries audio.
type ttyPermissions struct {
	granted bool
}

func (p *ttyPermissions) HasRecordingPermission() bool { return p.granted }

func (p *ttyPermissions) RequestRecordingPermission(ctx context.Context) <-chan bool {
	answer := make(chan bool, 1)
	go func() {
		tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
		if err != nil {
			answer <- false
			return
		}
		defer tty.Close()
		fmt.Fprint(tty, "Allow microphone capture? [y/N] ")
		line, _ := bufio.NewReader(tty).ReadString('\n')
		ok := strings.EqualFold(strings.TrimSpace(line), "y") || strings.EqualFold(strings.TrimSpace(line), "yes")
		select {
		case answer <- ok:
		case <-ctx.Done():
		}
	}()
	return answer
}

func runRecord(args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	outDir := fs.String("out", "", "Output directory (overrides recording.output_dir)")
	yes := fs.Bool("yes", false, "Skip the capture permission prompt")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *outDir != "" {
		cfg.Recording.OutputDir = *outDir
	}
	logger := newLogger(*verbose)

	recorder := recording.NewStreamRecorder(cfg.Recording.OutputDir, os.Stdin, logger)
	session := recording.NewSession(recorder, &ttyPermissions{granted: *yes}, recording.Options{
		TickInterval: time.Duration(cfg.Recording.TickIntervalMS) * time.Millisecond,
		Logger:       logger,
	})
	defer session.Close()

	states, unsubscribe := session.Watch(4)
	defer unsubscribe()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigs)

	if err := session.Start(); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "recording: Ctrl-C stops, SIGUSR1 toggles pause")

	// a denied permission request leaves the session Idle without a new state
	check := time.NewTicker(200 * time.Millisecond)
	defer check.Stop()

	started := false
	for {
		select {
		case <-check.C:
			if _, idle := session.State().(recording.Idle); idle && session.Err() != nil {
				return session.Err()
			}
		case sig := <-sigs:
			if sig == syscall.SIGUSR1 {
				if err := togglePause(session); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
				continue
			}
			if err := session.Stop(); err != nil {
				if errors.Is(err, recording.ErrInvalidTransition) {
					return errors.New("recording cancelled before capture started")
				}
				return err
			}
		case st := <-states:
			switch s := st.(type) {
			case recording.Recording:
				started = true
				fmt.Fprintf(os.Stderr, "%s● %s", clearLine(), s.Clock())
			case recording.Paused:
				fmt.Fprintf(os.Stderr, "%s‖ %s", clearLine(), s.Clock())
			case recording.Stopped:
				fmt.Fprintln(os.Stderr)
				fmt.Println(s.Path)
				return nil
			case recording.Idle:
				if err := session.Err(); err != nil {
					return err
				}
				if started {
					return errors.New("recording ended without a file")
				}
			}
		}
	}
}

func togglePause(s *recording.Session) error {
	switch s.State().(type) {
	case recording.Recording:
		return s.Pause()
	case recording.Paused:
		return s.Resume()
	}
	return nil
}
