// Package shell provides the interactive rig console.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/teslashibe/go-animatronic/pkg/clip"
	"github.com/teslashibe/go-animatronic/pkg/mixer"
	"github.com/teslashibe/go-animatronic/pkg/rigclient"
	"github.com/teslashibe/go-animatronic/pkg/web"
)

// Shell is the interactive command-line interface.
type Shell struct {
	client *rigclient.Client
	rl     *readline.Instance
	out    io.Writer
}

// Config holds shell configuration.
type Config struct {
	HistoryFile string
}

var errQuit = errors.New("quit")

// New creates a console for the rig behind client.
func New(client *rigclient.Client, cfg Config) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[32mrig>\033[0m ",
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    NewCompleter(client),
	})
	if err != nil {
		return nil, err
	}
	return &Shell{client: client, rl: rl, out: rl.Stdout()}, nil
}

// NewOneShot creates a shell without a line editor, for running single
// commands with Exec.
func NewOneShot(client *rigclient.Client, out io.Writer) *Shell {
	return &Shell{client: client, out: out}
}

// Run starts the interactive loop.
func (s *Shell) Run(ctx context.Context) error {
	defer s.rl.Close()

	fmt.Fprintf(s.out, "Connected to %s. Type help for commands.\n", s.client.BaseURL)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		if err := s.Exec(ctx, line); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

// Exec runs a single command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "h":
		s.printHelp()

	case "status":
		st, err := s.client.Status(ctx)
		if err != nil {
			return err
		}
		s.printStatus(st)

	case "layers":
		layers, err := s.client.Layers(ctx)
		if err != nil {
			return err
		}
		s.printLayers(layers)

	case "clips":
		clips, err := s.client.Clips(ctx)
		if err != nil {
			return err
		}
		for _, c := range clips {
			fmt.Fprintf(s.out, "  %-16s %4d frames @ %g fps (%.2fs) actuators %v\n",
				c.Name, c.Frames, c.FrameRate, c.Duration, c.Actuators)
		}

	case "play", "pause", "stop":
		st, err := s.client.Transport(ctx, cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Transport: %s\n", playState(st.Playing))

	case "rate":
		if len(args) != 1 {
			return usage("rate <hz>")
		}
		hz, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid rate %q", args[0])
		}
		if err := s.client.SetFrameRate(ctx, hz); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Frame rate set to %g Hz\n", hz)

	case "add":
		req, err := parseAdd(args)
		if err != nil {
			return err
		}
		info, err := s.client.CreateLayer(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Added layer %s (weight %.2f)\n", info.Name, info.Weight)

	case "rm":
		if len(args) != 1 {
			return usage("rm <name>")
		}
		if err := s.client.RemoveLayer(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Removed layer %s\n", args[0])

	case "weight":
		name, w, d, err := parseWeight(args)
		if err != nil {
			return err
		}
		info, err := s.client.SetWeight(ctx, name, w, d)
		if err != nil {
			return err
		}
		if d > 0 {
			fmt.Fprintf(s.out, "Fading %s to %.2f over %s\n", name, w, d)
		} else {
			fmt.Fprintf(s.out, "Layer %s weight %.2f\n", info.Name, info.Weight)
		}

	case "lplay", "lpause", "lresume", "lstop":
		if len(args) != 1 {
			return usage(cmd + " <name>")
		}
		info, err := s.client.LayerAction(ctx, args[0], strings.TrimPrefix(cmd, "l"))
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Layer %s %s at frame %d\n", info.Name, playState(info.Playing), info.Frame)

	case "playlist":
		if len(args) != 1 {
			return usage("playlist <file>")
		}
		p, err := clip.LoadPlaylist(args[0])
		if err != nil {
			return err
		}
		ps, err := s.client.SetPlaylist(ctx, p.Entries())
		if err != nil {
			return err
		}
		s.printPlaylist(ps)

	case "next":
		ps, err := s.client.AdvancePlaylist(ctx)
		if err != nil {
			return err
		}
		s.printPlaylist(ps)

	case "reset":
		if err := s.client.ResetPlaylist(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "Playlist cleared.")

	case "watch":
		n := 10
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return usage("watch [n]")
			}
			n = v
		}
		return s.watch(ctx, n)

	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
	}

	return nil
}

func (s *Shell) watch(ctx context.Context, n int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	seen := 0
	return s.client.Watch(ctx, func(st mixer.Status) {
		seen++
		fmt.Fprintf(s.out, "[%d] %s", seen, playState(st.Playing))
		for _, id := range sortedOutputs(st.Outputs) {
			fmt.Fprintf(s.out, " %d=%.1f", id, st.Outputs[id])
		}
		fmt.Fprintln(s.out)
		if seen >= n {
			cancel()
		}
	})
}

func parseAdd(args []string) (web.CreateLayerRequest, error) {
	const use = "add <clip> [name] [weight] [loop] [transient]"
	req := web.CreateLayerRequest{}
	if len(args) == 0 {
		return req, usage(use)
	}
	req.Clip = args[0]

	for _, arg := range args[1:] {
		switch arg {
		case "loop":
			req.Loop = true
			continue
		case "transient":
			req.Transient = true
			continue
		}
		if w, err := strconv.ParseFloat(arg, 64); err == nil {
			if req.Weight != nil {
				return req, usage(use)
			}
			req.Weight = &w
			continue
		}
		if req.Name != "" {
			return req, usage(use)
		}
		req.Name = arg
	}
	return req, nil
}

func parseWeight(args []string) (string, float64, time.Duration, error) {
	const use = "weight <name> <w> [seconds]"
	if len(args) < 2 || len(args) > 3 {
		return "", 0, 0, usage(use)
	}
	w, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid weight %q", args[1])
	}
	var d time.Duration
	if len(args) == 3 {
		secs, err := strconv.ParseFloat(args[2], 64)
		if err != nil || secs < 0 {
			return "", 0, 0, fmt.Errorf("invalid duration %q", args[2])
		}
		d = time.Duration(secs * float64(time.Second))
	}
	return args[0], w, d, nil
}

func usage(s string) error {
	return fmt.Errorf("usage: %s", s)
}

func playState(playing bool) string {
	if playing {
		return "playing"
	}
	return "stopped"
}

func sortedOutputs(m map[int]float64) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Shell) printStatus(st mixer.Status) {
	fmt.Fprintf(s.out, "Transport: %s @ %g Hz\n", playState(st.Playing), st.FrameRate)
	fmt.Fprintf(s.out, "  Layers: %d (weight sum %.3f)\n", len(st.Layers), st.WeightSum)
	fmt.Fprintf(s.out, "  Actuators: %v\n", st.Actuators)
	fmt.Fprintf(s.out, "  Ticks: %d, overruns: %d, write errors: %d\n", st.Ticks, st.Overruns, st.WriteErrors)
	if st.Playlist.Active {
		s.printPlaylist(st.Playlist)
	}
}

func (s *Shell) printLayers(layers []mixer.LayerInfo) {
	if len(layers) == 0 {
		fmt.Fprintln(s.out, "No layers.")
		return
	}
	for _, l := range layers {
		flags := ""
		if l.Looping {
			flags += " loop"
		}
		if l.Transient {
			flags += " transient"
		}
		if l.BlendingOut {
			flags += " blending-out"
		}
		fmt.Fprintf(s.out, "  %-16s %-12s w=%.2f %s %d/%d%s\n",
			l.Name, l.Clip, l.Weight, playState(l.Playing), l.Frame, l.FrameCount, flags)
	}
}

func (s *Shell) printPlaylist(ps mixer.PlaylistState) {
	if !ps.Active {
		fmt.Fprintln(s.out, "No playlist.")
		return
	}
	hold := ""
	if ps.Holding {
		hold = " (holding, use next)"
	}
	fmt.Fprintf(s.out, "Playlist: entry %d/%d %s%s\n", ps.Index+1, ps.Length, ps.Clip, hold)
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, "Transport:")
	fmt.Fprintln(s.out, "  status                 - Show mixer status")
	fmt.Fprintln(s.out, "  play | pause | stop    - Control the mixer")
	fmt.Fprintln(s.out, "  rate <hz>              - Set the tick rate")
	fmt.Fprintln(s.out, "  watch [n]              - Stream n telemetry frames (default 10)")
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Layers:")
	fmt.Fprintln(s.out, "  clips                  - List loaded clips")
	fmt.Fprintln(s.out, "  layers                 - List layers")
	fmt.Fprintln(s.out, "  add <clip> [name] [weight] [loop] [transient]")
	fmt.Fprintln(s.out, "  rm <name>              - Remove a layer")
	fmt.Fprintln(s.out, "  weight <name> <w> [s]  - Set or fade a layer weight")
	fmt.Fprintln(s.out, "  lplay|lpause|lresume|lstop <name>")
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Playlist:")
	fmt.Fprintln(s.out, "  playlist <file>        - Load and start a playlist")
	fmt.Fprintln(s.out, "  next                   - Advance to the next entry")
	fmt.Fprintln(s.out, "  reset                  - Clear the playlist")
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "  quit                   - Exit")
}
