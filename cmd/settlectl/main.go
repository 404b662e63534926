package main

import "github.com/fieldbook/ppv-settlement/internal/cli"

func main() {
	cli.Execute()
}
