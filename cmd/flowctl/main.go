package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/lab5e/flowfunk/pkg/ctrlc"
)

func main() {
	var params ctrlc.Parameters
	k, err := kong.New(&params, kong.Name("flowctl"),
		kong.Description("Flow affinity dataplane management"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: false,
		}))
	if err != nil {
		panic(err)
	}
	ctx, err := k.Parse(os.Args[1:])
	if err != nil {
		k.FatalIfErrorf(err)
		return
	}
	if err := ctx.Run(ctrlc.NewRunContext(params)); err != nil {
		// Commands print their own errors
		os.Exit(1)
	}
}
