package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-notes/internal/bus"
	"github.com/loqalabs/loqa-notes/internal/protocol"
	"github.com/loqalabs/loqa-notes/internal/stt"
	"github.com/loqalabs/loqa-notes/internal/summary"
	"github.com/nats-io/nats.go"
)

var errCancelled = errors.New("transcription cancelled")

type transcribeFlags struct {
	language  string
	model     string
	remote    string
	summarize bool
	rate      float64
}

func runTranscribe(args []string) error {
	fs := flag.NewFlagSet("transcribe", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	verbose := fs.Bool("v", false, "Verbose logging")
	var f transcribeFlags
	fs.StringVar(&f.language, "language", "", "Language code (overrides stt.language)")
	fs.StringVar(&f.model, "model", "", "Model path (overrides stt.model_path)")
	fs.StringVar(&f.remote, "remote", "", "NATS URL of a running notesd; transcribe locally when empty")
	fs.BoolVar(&f.summarize, "summary", false, "Print an extractive summary after the transcript")
	fs.Float64Var(&f.rate, "rate", 0, "Summary compression rate (overrides summary.compression_rate)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: notes transcribe [flags] <file.wav>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if f.language != "" {
		cfg.STT.Language = f.language
	}
	if f.model != "" {
		cfg.STT.ModelPath = f.model
	}
	if f.rate == 0 {
		f.rate = cfg.Summary.CompressionRate
	}
	logger := newLogger(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if f.remote != "" {
		cfg.Bus.Servers = []string{f.remote}
		client, err := bus.Connect(ctx, cfg.Bus, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		return transcribeRemote(ctx, client, fs.Arg(0), cfg.STT.Language, f)
	}

	engine, err := stt.NewEngine(cfg.STT)
	if err != nil {
		return err
	}
	orch := stt.NewOrchestrator(engine, stt.Options{
		ChunkFrames:  cfg.STT.ChunkFrames,
		ChunkTimeout: time.Duration(cfg.STT.ChunkTimeout) * time.Millisecond,
		Logger:       logger,
	})
	defer orch.Finish()
	if err := orch.Initialize(ctx, cfg.STT.ModelPath); err != nil {
		return err
	}

	var texts []string
	done := make(chan error, 1)
	cb := stt.Callbacks{
		OnSegment: func(s stt.Segment) {
			fmt.Fprint(os.Stderr, clearLine())
			fmt.Printf("[%s --> %s] %s\n", clockMs(s.StartMs), clockMs(s.EndMs), strings.TrimSpace(s.Text))
			if t := strings.TrimSpace(s.Text); t != "" {
				texts = append(texts, t)
			}
		},
		OnProgress: func(p int) { fmt.Fprintf(os.Stderr, "%s%3d%%", clearLine(), p) },
		OnComplete: func() { done <- nil },
		OnCancel:   func() { done <- errCancelled },
		OnError:    func(err error) { done <- err },
	}
	if err := orch.Start(ctx, fs.Arg(0), cfg.STT.Language, cb); err != nil {
		return err
	}
	if err := <-done; err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, clearLine())

	if f.summarize {
		printSummary(summary.Summarize(strings.Join(texts, " "), f.rate))
	}
	return nil
}

func transcribeRemote(ctx context.Context, client *bus.Client, path, language string, f transcribeFlags) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	conn := client.Conn()

	segSub, err := conn.Subscribe(protocol.SubjectTranscriptSegment, func(msg *nats.Msg) {
		var evt protocol.SegmentEvent
		if json.Unmarshal(msg.Data, &evt) == nil && evt.RunID == runID {
			fmt.Fprint(os.Stderr, clearLine())
			fmt.Printf("[%s --> %s] %s\n", clockMs(evt.StartMs), clockMs(evt.EndMs), strings.TrimSpace(evt.Text))
		}
	})
	if err != nil {
		return err
	}
	defer segSub.Unsubscribe()

	progSub, err := conn.Subscribe(protocol.SubjectTranscriptProgress, func(msg *nats.Msg) {
		var evt protocol.ProgressEvent
		if json.Unmarshal(msg.Data, &evt) == nil && evt.RunID == runID {
			fmt.Fprintf(os.Stderr, "%s%3d%%", clearLine(), evt.Percent)
		}
	})
	if err != nil {
		return err
	}
	defer progSub.Unsubscribe()

	doneCh := make(chan protocol.RunStatus, 1)
	doneSub, err := conn.Subscribe(protocol.SubjectTranscriptDone, func(msg *nats.Msg) {
		var evt protocol.RunStatus
		if json.Unmarshal(msg.Data, &evt) == nil && evt.RunID == runID {
			select {
			case doneCh <- evt:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer doneSub.Unsubscribe()
	if err := conn.Flush(); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var ack protocol.TranscribeAck
	req := protocol.TranscribeRequest{RunID: runID, Path: abs, Language: language, Summary: f.summarize}
	if err := client.RequestJSON(reqCtx, protocol.SubjectTranscribeRequest, req, &ack); err != nil {
		return err
	}
	if !ack.Accepted {
		return fmt.Errorf("notesd rejected run: %s", ack.Error)
	}

	select {
	case <-ctx.Done():
		cancelCtx, cancelReq := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelReq()
		_ = client.RequestJSON(cancelCtx, protocol.SubjectTranscribeCancel, protocol.CancelRequest{RunID: runID}, &ack)
		return errCancelled
	case status := <-doneCh:
		fmt.Fprint(os.Stderr, clearLine())
		if status.Error != "" {
			return fmt.Errorf("run %s %s: %s", runID, status.Status, status.Error)
		}
		if status.Status == stt.StatusCancelled.String() {
			return errCancelled
		}
		if f.summarize {
			printSummary(status.Summary)
		}
		return nil
	}
}

func printSummary(text string) {
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Println(text)
}
