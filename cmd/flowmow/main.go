// flowmow - instrument log parser and calibration engine
//
// flowmow reads the text logs and navigation files recorded during a dive,
// recognizes the records of each instrument and writes calibrated tables.
package main

import (
	"os"

	"github.com/oceanlab/flowmow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
