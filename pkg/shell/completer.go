package shell

import (
	"context"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/teslashibe/go-animatronic/pkg/rigclient"
)

// commands is the static list of console commands.
var commands = []string{
	"add",
	"clips",
	"help",
	"layers",
	"lpause",
	"lplay",
	"lresume",
	"lstop",
	"next",
	"pause",
	"play",
	"playlist",
	"quit",
	"rate",
	"reset",
	"rm",
	"status",
	"stop",
	"watch",
	"weight",
}

// layerCommands take a layer name as their first argument.
var layerCommands = map[string]bool{
	"rm":      true,
	"weight":  true,
	"lplay":   true,
	"lpause":  true,
	"lresume": true,
	"lstop":   true,
}

const lookupTimeout = 500 * time.Millisecond

// Completer completes command names, layer names and clip names.
// Names are fetched from the rig on each request.
type Completer struct {
	client *rigclient.Client
}

// NewCompleter creates a completer backed by client. A nil client only
// completes command names.
func NewCompleter(client *rigclient.Client) *Completer {
	return &Completer{client: client}
}

var _ readline.AutoCompleter = (*Completer)(nil)

// Do implements readline.AutoCompleter.
func (c *Completer) Do(line []rune, pos int) (newLine [][]rune, length int) {
	if pos > len(line) {
		pos = len(line)
	}
	if pos <= 0 {
		return nil, 0
	}

	lineStr := string(line[:pos])
	wordStart := strings.LastIndexAny(lineStr, " \t") + 1
	word := lineStr[wordStart:]
	before := strings.Fields(lineStr[:wordStart])

	switch len(before) {
	case 0:
		return complete(commands, word)
	case 1:
		switch {
		case before[0] == "add":
			return complete(c.clipNames(), word)
		case layerCommands[before[0]]:
			return complete(c.layerNames(), word)
		}
	}
	return nil, 0
}

func complete(candidates []string, prefix string) ([][]rune, int) {
	var matches [][]rune
	for _, cand := range candidates {
		if strings.HasPrefix(cand, prefix) {
			matches = append(matches, []rune(cand[len(prefix):]+" "))
		}
	}
	return matches, len(prefix)
}

func (c *Completer) layerNames() []string {
	if c.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	layers, err := c.client.Layers(ctx)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(layers))
	for _, l := range layers {
		names = append(names, l.Name)
	}
	return names
}

func (c *Completer) clipNames() []string {
	if c.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	clips, err := c.client.Clips(ctx)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(clips))
	for _, cl := range clips {
		names = append(names, cl.Name)
	}
	return names
}
