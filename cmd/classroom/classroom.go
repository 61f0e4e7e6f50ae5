// Package classroomcmder
package classroomcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/classroom/cmd/classroom/chat"
	configcmder "github.com/papercomputeco/classroom/cmd/classroom/config"
	questionscmder "github.com/papercomputeco/classroom/cmd/classroom/questions"
	servecmder "github.com/papercomputeco/classroom/cmd/classroom/serve"
	versioncmder "github.com/papercomputeco/classroom/cmd/version"
)

const classroomLongDesc string = `Classroom is the AI backend for the classroom web app.

Run the service and talk to it using:
  classroom serve                 Run the chat relay and question generator
  classroom chat                  Chat with the AI tutor from the terminal
  classroom questions <topic>     Generate study questions for a topic
  classroom config                Manage persistent configuration`

const classroomShortDesc string = "Classroom - AI tutor service"

func NewClassroomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "classroom",
		Short:         classroomShortDesc,
		Long:          classroomLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .classroom/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(questionscmder.NewQuestionsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
