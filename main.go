package main

import (
	"VoxDub/cmd"
	"log"
)

func main() {
	cmd.Execute()
	// If Execute() had a problem, Cobra would have called os.Exit.
	// If we reach here, the command completed successfully (or a
	// long-running server started without error during setup).
	log.Println("Application command execution finished or server started.")
}
