package main

import "github.com/b87/testdb-kit/cobra"

func main() {
	cobra.Execute()
}
