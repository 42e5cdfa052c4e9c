package cmds

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

func (p *Executor) PrintUsage() {
	p.WriteUsage(os.Stdout)
}

func (p *Executor) WriteUsage(w io.Writer) {
	writeCommands(w, p.commands, 0)
}

func writeCommands(w io.Writer, commands map[string]*Command, indent int) {
	// aliases share the same *Command, print each once
	names := make(map[*Command][]string)
	for name, command := range commands {
		names[command] = append(names[command], name)
	}
	order := slices.Collect(func(yield func(*Command) bool) {
		for command := range names {
			if !yield(command) {
				return
			}
		}
	})
	for _, aliases := range names {
		slices.Sort(aliases)
	}
	slices.SortFunc(order, func(a, b *Command) int {
		return strings.Compare(names[a][0], names[b][0])
	})
	for _, command := range order {
		fmt.Fprintf(w, "%s%s", strings.Repeat("  ", indent), strings.Join(names[command], ", "))
		if command != nil && command.Description != "" {
			fmt.Fprintf(w, "\n%s%s", strings.Repeat("  ", indent+1), command.Description)
		}
		fmt.Fprintln(w)
		if command != nil && len(command.Subs) > 0 {
			writeCommands(w, command.Subs, indent+1)
		}
	}
}
