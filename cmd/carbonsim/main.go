// Command carbonsim runs the multicore architectural simulator back end
// against a YAML config and a dynamic instruction trace.
package main

import "github.com/sarchlab/carbonsim/cmd"

func main() {
	cmd.Execute()
}
