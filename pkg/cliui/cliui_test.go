package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/classroom/pkg/cliui"
)

var _ = Describe("cliui", func() {
	It("treats buffers as non-terminals", func() {
		Expect(cliui.IsTerminal(&bytes.Buffer{})).To(BeFalse())
	})

	It("runs a step silently on non-terminals", func() {
		var buf bytes.Buffer
		called := false
		err := cliui.Step(&buf, "working", func() error {
			called = true
			return errors.New("boom")
		})
		Expect(called).To(BeTrue())
		Expect(err).To(MatchError("boom"))
		Expect(buf.String()).To(BeEmpty())
	})

	It("uses plain prompts on non-terminals", func() {
		var buf bytes.Buffer
		Expect(cliui.Prompt(&buf, "user")).To(Equal("you> "))
		Expect(cliui.Prompt(&buf, "assistant")).To(Equal("ai> "))
	})

	It("prints plain notifications", func() {
		var buf bytes.Buffer
		cliui.Notify(&buf, "AI error")
		Expect(buf.String()).To(Equal("error: AI error\n"))
	})

	It("renders a numbered list", func() {
		var buf bytes.Buffer
		cliui.NumberedList(&buf, []string{" What is a cell? ", "Why do cells divide?"})
		Expect(buf.String()).To(Equal("1. What is a cell?\n2. Why do cells divide?\n"))
	})

	It("formats durations", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})

	It("marks errors", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
		Expect(cliui.Mark(errors.New("x"))).To(Equal(cliui.FailMark))
	})

	It("renders markdown", func() {
		out, err := cliui.RenderMarkdown("# Title\n\nbody")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Title"))
		Expect(out).To(ContainSubstring("body"))
	})
})
