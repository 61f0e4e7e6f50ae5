// Package storagetest holds the behavior every storage.Driver must share,
// written as Ginkgo specs so each driver's suite can run them.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/storage"
)

// NewTurn returns a turn with fixed content for the given ids.
func NewTurn(id, sessionID string, createdAt time.Time) *storage.Turn {
	return &storage.Turn{
		ID:        id,
		SessionID: sessionID,
		Model:     "mistral-medium-latest",
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleUser, "What is photosynthesis?"),
		},
		Reply:     "Plants turn light into sugar.",
		CreatedAt: createdAt,
		Duration:  1500 * time.Millisecond,
	}
}

// DriverBehaviors registers the shared driver specs. newDriver is called
// before each spec and the returned driver is closed after it.
func DriverBehaviors(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
		base   time.Time
	)

	BeforeEach(func() {
		driver = nil
		ctx = context.Background()
		base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put and Get", func() {
		It("round-trips a turn", func() {
			turn := NewTurn("t-1", "s-1", base)
			turn.Partial = true
			Expect(driver.Put(ctx, turn)).To(Succeed())

			got, err := driver.Get(ctx, "t-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("t-1"))
			Expect(got.SessionID).To(Equal("s-1"))
			Expect(got.Model).To(Equal(turn.Model))
			Expect(got.Messages).To(Equal(turn.Messages))
			Expect(got.Reply).To(Equal(turn.Reply))
			Expect(got.Partial).To(BeTrue())
			Expect(got.CreatedAt).To(BeTemporally("==", base))
			Expect(got.Duration).To(Equal(1500 * time.Millisecond))
		})

		It("ignores a second put with the same id", func() {
			Expect(driver.Put(ctx, NewTurn("t-1", "s-1", base))).To(Succeed())

			dup := NewTurn("t-1", "s-1", base.Add(time.Minute))
			dup.Reply = "changed"
			Expect(driver.Put(ctx, dup)).To(Succeed())

			got, err := driver.Get(ctx, "t-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Reply).To(Equal("Plants turn light into sugar."))

			turns, err := driver.ListSession(ctx, "s-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
		})

		It("stores a turn without messages", func() {
			turn := NewTurn("t-empty", "s-1", base)
			turn.Messages = nil
			Expect(driver.Put(ctx, turn)).To(Succeed())

			got, err := driver.Get(ctx, "t-empty")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages).To(BeEmpty())
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})

		It("rejects a nil turn", func() {
			Expect(driver.Put(ctx, nil)).NotTo(Succeed())
		})

		It("rejects a turn without an id", func() {
			Expect(driver.Put(ctx, NewTurn("", "s-1", base))).NotTo(Succeed())
		})
	})

	Describe("ListSession", func() {
		It("returns the turns of a session oldest first", func() {
			Expect(driver.Put(ctx, NewTurn("t-3", "s-1", base.Add(2*time.Minute)))).To(Succeed())
			Expect(driver.Put(ctx, NewTurn("t-1", "s-1", base))).To(Succeed())
			Expect(driver.Put(ctx, NewTurn("t-2", "s-1", base.Add(time.Minute)))).To(Succeed())
			Expect(driver.Put(ctx, NewTurn("o-1", "s-2", base))).To(Succeed())

			turns, err := driver.ListSession(ctx, "s-1")
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, 0, len(turns))
			for _, t := range turns {
				ids = append(ids, t.ID)
			}
			Expect(ids).To(Equal([]string{"t-1", "t-2", "t-3"}))
		})

		It("returns an empty slice for an unknown session", func() {
			turns, err := driver.ListSession(ctx, "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})
}
