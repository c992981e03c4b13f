package main

import "github.com/ramiqadoumi/go-countdown/services/timerd/cli"

func main() {
	cli.Execute()
}
