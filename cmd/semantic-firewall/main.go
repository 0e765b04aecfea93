// Command semantic-firewall runs the semantic firewall proxy.
package main

import "github.com/dannycabezas/semantic-firewall/cmd/semantic-firewall/cmd"

func main() {
	cmd.Execute()
}
