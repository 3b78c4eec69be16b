package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"github.com/zulandar/atlas/internal/config"
	"github.com/zulandar/atlas/internal/game"
	"github.com/zulandar/atlas/internal/gateway"
	"golang.org/x/term"
)

const playHelp = `Commands:
  photo <path>     show Captain Atlas a photo
  reveal <place>   say where the photo was really taken
  fly <lat, lng>   fly to coordinates (or a place name)
  reset            start over
  state            show the current phase
  help             show this help
  quit             leave the game`

func newPlayCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play Atlas in the terminal",
		Long:  "Runs the game against stdin/stdout. One command per line; type \"help\" for the list.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Atlas config file")
	return cmd
}

func runPlay(cmd *cobra.Command, configPath string) error {
	loadEnv()
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}

	store, _, err := openCallLog(cfg)
	if err != nil {
		return err
	}
	var rec gateway.Recorder
	if store != nil {
		rec = store
	}
	gw, err := newGateway(cfg, rec)
	if err != nil {
		return err
	}
	eng, err := game.New(game.Opts{
		Gateway:     gw,
		PromptDelay: cfg.Game.PromptDelay,
		CallTimeout: cfg.Game.CallTimeout,
	})
	if err != nil {
		return err
	}

	s := &playSession{
		eng:         eng,
		out:         cmd.OutOrStdout(),
		interactive: isTerminal(cmd.InOrStdin()),
		maxUpload:   cfg.Game.MaxUploadBytes,
	}
	return s.run(cmd.Context(), cmd.InOrStdin())
}

// isTerminal reports whether in is an interactive terminal.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// playSession drives the engine one command at a time, waiting for each
// operation to settle before reading the next line.
type playSession struct {
	eng         *game.Engine
	out         io.Writer
	interactive bool
	maxUpload   int64
	lastSeq     int
}

func (s *playSession) run(ctx context.Context, in io.Reader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintln(s.out, "🧭 Captain Atlas is ready for takeoff. Type \"help\" for commands.")

	scanner := bufio.NewScanner(in)
	for {
		if s.interactive {
			fmt.Fprintf(s.out, "[%s] > ", s.eng.Snapshot().Phase)
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		verb, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		var done <-chan struct{}
		var err error
		switch strings.ToLower(verb) {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(s.out, playHelp)
			continue
		case "state":
			s.printState()
			continue
		case "reset":
			s.eng.Reset()
			s.lastSeq = 0
			fmt.Fprintln(s.out, "🔄 New game.")
			continue
		case "photo":
			done, err = s.submitPhoto(arg)
		case "reveal":
			done, err = s.eng.SubmitReveal(arg)
		case "fly":
			done, err = s.eng.SubmitFlight(arg)
		default:
			fmt.Fprintf(s.out, "Unknown command %q. Type \"help\".\n", verb)
			continue
		}

		if err != nil {
			fmt.Fprintf(s.out, "✋ %v\n", err)
			continue
		}
		s.printNew()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.printNew()
	}
	return scanner.Err()
}

func (s *playSession) submitPhoto(path string) (<-chan struct{}, error) {
	if path == "" {
		return nil, errors.New("usage: photo <path>")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if s.maxUpload > 0 && info.Size() > s.maxUpload {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, s.maxUpload)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mt.String())
	}
	return s.eng.SubmitImage(game.Artifact{
		Filename: filepath.Base(path),
		Image:    gateway.Image{MIMEType: mt.String(), Data: data},
	})
}

// printNew writes every log entry added since the last call.
func (s *playSession) printNew() {
	for _, e := range s.eng.Log().Since(s.lastSeq) {
		writeEntry(s.out, e)
		s.lastSeq = e.Seq
	}
}

func (s *playSession) printState() {
	st := s.eng.Snapshot()
	fmt.Fprintf(s.out, "Phase:   %s\n", st.Phase)
	fmt.Fprintf(s.out, "Round:   %s\n", st.Round)
	fmt.Fprintf(s.out, "Entries: %d\n", len(st.Entries))
	if st.Artifact != nil {
		fmt.Fprintf(s.out, "Photo:   %s (%s, %d bytes)\n", st.Artifact.Filename, st.Artifact.MIMEType, st.Artifact.Size)
	}
}
