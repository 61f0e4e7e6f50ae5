package main

import (
	"os"

	classroomcmder "github.com/papercomputeco/classroom/cmd/classroom"
)

func main() {
	cmd := classroomcmder.NewClassroomCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
