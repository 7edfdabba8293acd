// Command judgebox is the competitive-programming problem-authoring CLI:
// generate testcases, run solutions against them, and stress-test with a
// boolean expression over solution/checker outcomes.
package main

import (
	"fmt"
	"os"

	"github.com/rsalesc/robox.io-sub000/cmd/judgebox/cmd"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == sandbox.TimeitArgName {
		if err := sandbox.RunTimeitChild(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}
	cmd.Execute()
}
