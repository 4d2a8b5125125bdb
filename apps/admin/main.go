package main

import (
	"fmt"
	"os"

	"github.com/trezcool/examoffice/apps/di"
	"github.com/trezcool/examoffice/core"
)

func main() {
	conf := core.NewConfig()
	cli := &commandLine{container: di.New(conf)}
	if err := cli.rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		os.Exit(1)
	}
}
