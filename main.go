// The main package for the hash-archive executable.
package main

import "github.com/JakeFAU/hash-archive/cmd"

func main() {
	cmd.Execute()
}
