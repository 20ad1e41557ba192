// Command disperse automates releases of projects whose news file declares
// a pending version.
package main

import "github.com/papapumpkin/disperse/cmd"

func main() {
	cmd.Execute()
}
