package main

import "github.com/vision-stage-tracker/internal/cli"

func main() {
	cli.Execute()
}
