package tripwire

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Debugger is the interactive session a Break callback suspends into. Enter
// blocks the firing goroutine until the session ends; returning resumes
// normal flow.
type Debugger interface {
	Enter(unit *CodeUnit, f Frame) error
}

// ConsoleDebugger is a minimal line-oriented debugger on an arbitrary
// reader/writer pair. Commands:
//
//	locals, l          list visible bindings
//	print NAME, p NAME print one binding
//	set NAME VALUE     overwrite a binding (bool, int, float, or string)
//	where, w           show the current unit and line
//	continue, c        end the session and resume
type ConsoleDebugger struct {
	In  io.Reader
	Out io.Writer
}

// NewConsoleDebugger returns a debugger attached to stdin/stdout.
func NewConsoleDebugger() *ConsoleDebugger {
	return &ConsoleDebugger{In: os.Stdin, Out: os.Stdout}
}

// Enter runs the interactive loop until "continue" or EOF.
func (d *ConsoleDebugger) Enter(unit *CodeUnit, f Frame) error {
	fmt.Fprintf(d.Out, "breakpoint hit in %s at line %d\n", unit.Name(), f.Line())
	scanner := bufio.NewScanner(d.In)
	for {
		fmt.Fprint(d.Out, "(tripwire) ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "continue", "c":
			return nil
		case "where", "w":
			fmt.Fprintf(d.Out, "%s:%d\n", unit.Name(), f.Line())
			if text, ok := unit.LineText(f.Line()); ok {
				fmt.Fprintf(d.Out, "  %s\n", text)
			}
		case "locals", "l":
			for _, name := range f.LocalNames() {
				v, _ := f.Local(name)
				fmt.Fprintf(d.Out, "  %s = %v\n", name, v)
			}
		case "print", "p":
			if len(fields) < 2 {
				fmt.Fprintln(d.Out, "usage: print NAME")
				continue
			}
			if v, ok := f.Local(fields[1]); ok {
				fmt.Fprintf(d.Out, "%v\n", v)
			} else {
				fmt.Fprintf(d.Out, "no local %q\n", fields[1])
			}
		case "set":
			if len(fields) < 3 {
				fmt.Fprintln(d.Out, "usage: set NAME VALUE")
				continue
			}
			f.SetLocal(fields[1], parseValue(strings.Join(fields[2:], " ")))
		default:
			fmt.Fprintf(d.Out, "unknown command %q\n", fields[0])
		}
	}
}

func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		return fl
	}
	return strings.Trim(s, `"`)
}
