package classroomcmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	classroomcmder "github.com/papercomputeco/classroom/cmd/classroom"
)

var _ = Describe("NewClassroomCmd", func() {
	It("registers every subcommand", func() {
		cmd := classroomcmder.NewClassroomCmd()

		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "chat", "questions", "config", "version"))
	})

	It("has persistent debug and config-dir flags", func() {
		cmd := classroomcmder.NewClassroomCmd()

		debug := cmd.PersistentFlags().Lookup("debug")
		Expect(debug).NotTo(BeNil())
		Expect(debug.Shorthand).To(Equal("d"))
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})
})
