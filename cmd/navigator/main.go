// Package main runs the grid navigator.
package main

import (
	"log"
	"os"

	"go.viam.com/gridnav/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
