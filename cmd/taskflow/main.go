package main

import (
	"os"
)

func main() {
	a := newApp()
	err := newRootCmd(a).Execute()
	// PersistentPostRunE is skipped when a command fails
	_ = a.close()
	if err != nil {
		os.Exit(1)
	}
}
