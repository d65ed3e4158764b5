package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Nordstrom/ctrace-agent/core"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [file]",
	Short: "Print the spans of saved v0.4 payloads as JSON lines",
	Long: `Reads one or more v0.4 payloads written back to back, e.g. by
"ctrace demo --save", and prints every span as one JSON line. Reads stdin
when no file or "-" is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().Bool("summary", false, "print payload and trace counts only")
}

func runDump(cmd *cobra.Command, args []string) error {
	summary, err := cmd.Flags().GetBool("summary")
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return dump(cmd.OutOrStdout(), data, summary)
}

func dump(out io.Writer, data []byte, summary bool) error {
	reporter := core.NewSpanReporter(out, core.NewSpanEncoder())
	payloads, traces, spans := 0, 0, 0
	for len(data) > 0 {
		decoded, rest, err := core.DecodeNextPayload(data)
		if err != nil {
			return fmt.Errorf("payload %d: %w", payloads, err)
		}
		data = rest
		payloads++
		for _, t := range decoded {
			traces++
			spans += len(t)
			if summary {
				continue
			}
			if err := reporter.Report(t); err != nil {
				return err
			}
		}
	}
	if summary {
		_, err := fmt.Fprintf(out, "%d payloads, %d traces, %d spans\n", payloads, traces, spans)
		return err
	}
	return nil
}
