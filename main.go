// main - entry-point to the etruck commands through cobra
// individual commands are outlined in ./cmd/ and ./services/*/cmd/
package main

import (
	"github.com/etruckzm/etruck-go/cmd"
	"github.com/etruckzm/etruck-go/libs/logging"

	// pull in payments service
	_ "github.com/etruckzm/etruck-go/services/payments/cmd"
)

var (
	// variables will be overwritten at build time
	version   string
	commit    string
	buildTime string
)

func main() {
	defer func() {
		if logging.Writer != nil {
			logging.Writer.Close()
		}
	}()
	cmd.Execute(version, commit, buildTime)
}
