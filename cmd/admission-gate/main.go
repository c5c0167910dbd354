// Command admission-gate runs the fixed-window admission gate.
package main

import "github.com/Sentinel-Gate/admission/cmd/admission-gate/cmd"

func main() {
	cmd.Execute()
}
