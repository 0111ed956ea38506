package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `
dispatch-engine — taxi fleet dispatch engine

  -config-path <path>   path to a YAML config file (optional, env vars override)
  -mode <mode>     run (default)
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}
