package main

import (
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"kaia/internal/config"
	"kaia/internal/ipc"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	socket := cli.StringP("socket", "s", "", "Control socket path")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: kaia-ctl [flags] start|stop|permission|clear-error|status\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() != 1 {
		cli.Usage()
		os.Exit(2)
	}

	_ = config.LoadEnv(*envFile)
	path := config.Load().Control.Socket
	if *socket != "" {
		path = *socket
	}

	resp, err := ipc.SendCommand(path, cli.Arg(0))
	if err != nil {
		fmt.Println("kaia not running:", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Println("error:", resp.Error)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(resp.Status, "", "  ")
	fmt.Println(string(out))
}
