package main

import "github.com/podfs/podfs-go/cmd/podfs/cmd"

func main() {
	cmd.Execute()
}
