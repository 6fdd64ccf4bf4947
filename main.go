package main

import "ecoproof-backend/cmd"

func main() {
	cmd.Run()
}
