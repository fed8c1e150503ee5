package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chosenoffset/tripwire/pkg/tripwire"
	"github.com/chosenoffset/tripwire/pkg/tripwire/dashboard"
	"github.com/chosenoffset/tripwire/pkg/tripwire/profile"
	"github.com/chosenoffset/tripwire/pkg/tripwire/script"
)

var (
	flagAt        []string
	flagDo        []string
	flagIf        string
	flagGoto      string
	flagBreak     bool
	flagDashboard int
	flagVerbose   bool

	flagRepeat int
	flagJSON   bool
)

func main() {
	root := &cobra.Command{
		Use:   "tripwire",
		Short: "Instrument and profile script programs",
	}

	runCmd := &cobra.Command{
		Use:   "run <script> <function> [args...]",
		Short: "Run a script function with handlers attached",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runRun,
	}
	runCmd.Flags().StringArrayVar(&flagAt, "at", nil, "trigger identifier: a line number, +offset, <start>, <return>, or a text prefix (repeatable)")
	runCmd.Flags().StringArrayVar(&flagDo, "do", nil, "snippet to execute when the trigger fires (repeatable)")
	runCmd.Flags().StringVar(&flagIf, "if", "", "condition expression gating the handler")
	runCmd.Flags().StringVar(&flagGoto, "goto", "", "redirect target when the trigger fires")
	runCmd.Flags().BoolVar(&flagBreak, "break", false, "suspend into the console debugger when the trigger fires")
	runCmd.Flags().IntVar(&flagDashboard, "dashboard", 0, "serve the firing dashboard on this port")
	runCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log engine activity")
	root.AddCommand(runCmd)

	profileCmd := &cobra.Command{
		Use:   "profile <script> <function> [args...]",
		Short: "Profile every function of a script program",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runProfile,
	}
	profileCmd.Flags().IntVar(&flagRepeat, "repeat", 1, "call the function this many times")
	profileCmd.Flags().BoolVar(&flagJSON, "json", false, "emit the report as JSON")
	root.AddCommand(profileCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadProgram(path string) (*script.Program, *script.Interp, *tripwire.Engine, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	prog, err := script.Parse(string(src))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	interp := script.NewInterp(prog)

	var opts []tripwire.Option
	if flagVerbose {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts, tripwire.WithLogger(logger))
	}
	engine := tripwire.New(interp, opts...)
	return prog, interp, engine, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	prog, interp, engine, err := loadProgram(args[0])
	if err != nil {
		return err
	}

	fnName := args[1]
	unit, ok := prog.Unit(fnName)
	if !ok {
		return fmt.Errorf("no function %q in %s", fnName, args[0])
	}

	if len(flagAt) > 0 || flagBreak || flagGoto != "" || len(flagDo) > 0 {
		b := engine.Instrument(tripwire.Unit(unit))
		for _, at := range flagAt {
			b.At(parseIdent(at))
		}
		if len(flagAt) == 0 {
			b.WhenCalled()
		}
		if flagIf != "" {
			b.If(flagIf)
		}
		for _, snippet := range flagDo {
			b.Exec(snippet)
		}
		if flagGoto != "" {
			b.Goto(parseIdent(flagGoto))
		}
		if flagBreak {
			b.Break()
		}
		handler, err := b.Apply()
		if err != nil {
			return err
		}
		defer handler.Remove()
	}

	if flagDashboard > 0 {
		srv := dashboard.NewServer(engine, flagDashboard)
		go func() {
			if err := srv.Start(); err != nil {
				fmt.Fprintln(os.Stderr, "dashboard:", err)
			}
		}()
		defer srv.Stop()
	}

	result, err := interp.Call(fnName, parseArgs(args[2:])...)
	if err != nil {
		return err
	}
	if result != nil {
		fmt.Println(result)
	}
	return nil
}

func runProfile(cmd *cobra.Command, args []string) error {
	prog, interp, engine, err := loadProgram(args[0])
	if err != nil {
		return err
	}
	if _, ok := prog.Unit(args[1]); !ok {
		return fmt.Errorf("no function %q in %s", args[1], args[0])
	}

	prof := profile.New(engine)
	if err := prof.Attach(tripwire.Everything()); err != nil {
		return err
	}
	defer prof.Detach()

	callArgs := parseArgs(args[2:])
	for i := 0; i < flagRepeat; i++ {
		if _, err := interp.Call(args[1], callArgs...); err != nil {
			return err
		}
	}

	report := prof.Report()
	if flagJSON {
		out, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Print(report.Summary())
	return nil
}

// parseIdent maps a flag value onto the identifier syntax: bare integers
// become line numbers, everything else passes through as a string.
func parseIdent(s string) any {
	if n, err := strconv.Atoi(s); err == nil && s[0] != '+' && s[0] != '-' {
		return n
	}
	return s
}

// parseArgs converts positional call arguments: int, then float, then
// bool, then string.
func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			out[i] = n
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			out[i] = f
			continue
		}
		if b, err := strconv.ParseBool(s); err == nil {
			out[i] = b
			continue
		}
		out[i] = s
	}
	return out
}
