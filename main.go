package main

import "github.com/andresmejia3/biogate/cmd"

func main() {
	cmd.Execute()
}
