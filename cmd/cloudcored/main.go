// Command cloudcored runs a long-lived cloudfactory daemon: an HTTP control
// API in front of one or more authenticated cloud-storage accounts, the way
// cmd/dex is the long-lived process in front of the dex server package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "cloudcored",
		Short: "cloudcored runs the cloudcore daemon",
	}
	root.AddCommand(commandServe())
	root.AddCommand(commandVersion())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
