// Command linkplanner serves the Fresnel link planner API and computes
// one-off Fresnel zones from the command line.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
