// Command toolgate is the authorization policy engine CLI.
package main

import "github.com/Tool-Gate/toolgate/cmd/toolgate/cmd"

func main() {
	cmd.Execute()
}
