// dreip-verify independently re-checks a signed election export: every ballot
// proof, every audited ballot's revealed secrets, the receipt signatures and
// both tally equations. It trusts nothing beyond the group parameters.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/verivote/dreip-node/types"
	"github.com/verivote/dreip-node/verifier"
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

func fail(format string, args ...any) {
	color.Printf("<error>ERROR</>\t"+format+"\n", args...)
	os.Exit(1)
}

func main() {
	quiet := flag.BoolP("quiet", "q", false, "only print findings and the final verdict")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "dreip-verify v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: dreip-verify [flags] <export.json>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fail("%s", err)
	}
	export := &types.ElectionExport{}
	if err := json.Unmarshal(data, export); err != nil {
		fail("could not parse export: %s", err)
	}

	if !*quiet {
		fmt.Println("\n= ", export.Title, " =")
		fmt.Printf("ID        : %s\n", export.ElectionID)
		fmt.Printf("Curve     : %s\n", export.CurveType)
		fmt.Printf("Authority : %s\n", export.AuthorityAddress.String())
		fmt.Printf("Window    : %s -> %s\n\n", export.StartTime.Format("2006-01-02 15:04"),
			export.EndTime.Format("2006-01-02 15:04"))
	}

	v := &verifier.Verifier{}
	if !*quiet {
		bar := progressbar.Default(int64(len(export.Ballots)), "verifying ballots")
		v.Progress = func() {
			bar.Add(1) //nolint:errcheck
		}
	}

	report, err := v.Verify(export)
	if err != nil {
		fail("%s", err)
	}

	if !*quiet {
		fmt.Println()
		color.Printf("Ballots   : <suc>%d</> (%d confirmed, %d audited, %d pending)\n",
			report.Ballots, report.Confirmed, report.Audited, report.Pending)
		for _, q := range export.Questions {
			fmt.Printf("\n%s\n", q.Question.Query)
			for _, res := range q.Results {
				color.Printf("  %-40s <suc>%s</>\n", res.Text, res.Votes.String())
			}
		}
		fmt.Println()
	}

	for _, finding := range report.Findings {
		color.Printf("<error>ERROR</>\t%s\n", finding)
	}
	if !report.OK() {
		color.Printf("\n<error>ERROR</>\t%d check(s) failed, the export is NOT verified\n", len(report.Findings))
		os.Exit(1)
	}
	color.Printf("<suc>OK</>\tall checks passed\n")
}
