// Command sable-cfg lowers built-in demonstration scenarios through the
// unwind subsystem and prints the resulting control-flow graph. It exists to
// make the lowering inspectable without driving a full compilation.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sable-lang/sable/dis"
	"github.com/sable-lang/sable/unwind"
)

func main() {
	root := &cobra.Command{
		Use:          "sable-cfg [scenario]",
		Short:        "Print the unwind-lowered CFG of a demonstration scenario",
		Args:         cobra.MaximumNArgs(1),
		RunE:         run,
		SilenceUsage: true,
	}
	root.Flags().StringP("personality", "p", "selector", "Unwind personality model (selector|funclet)")
	root.Flags().BoolP("list", "l", false, "List available scenarios")
	root.Flags().BoolP("verbose", "v", false, "Trace scope operations while lowering")
	root.Flags().Bool("no-color", false, "Disable colored output")

	viper.BindPFlag("personality", root.Flags().Lookup("personality"))
	viper.BindPFlag("no-color", root.Flags().Lookup("no-color"))
	viper.BindEnv("no-color", "NO_COLOR")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", color.RedString(err.Error()))
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cmdArgs []string) error {
	if viper.GetBool("no-color") || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}

	if list, _ := cmd.Flags().GetBool("list"); list {
		for _, name := range scenarioNames() {
			fmt.Println(name)
		}
		return nil
	}
	if len(cmdArgs) == 0 {
		return fmt.Errorf("no scenario given; try --list")
	}

	var model unwind.Model
	switch viper.GetString("personality") {
	case "selector":
		model = unwind.ModelSelector
	case "funclet":
		model = unwind.ModelFunclet
	default:
		return fmt.Errorf("unknown personality %q", viper.GetString("personality"))
	}

	logger := zerolog.Nop()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Logger()
	}

	name := cmdArgs[0]
	scenario, ok := scenarios[name]
	if !ok {
		return fmt.Errorf("unknown scenario %q; available: %s",
			name, strings.Join(scenarioNames(), ", "))
	}

	fn, err := scenario.build(&unwind.Config{Model: model, Logger: &logger})
	if err != nil {
		return err
	}
	dis.Print(fn, os.Stdout)
	return nil
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
