package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/classroom/pkg/storage"
	"github.com/papercomputeco/classroom/pkg/storage/sqlite"
	"github.com/papercomputeco/classroom/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DriverBehaviors(func() storage.Driver {
		driver, err := sqlite.NewDriver(context.Background(), ":memory:")
		Expect(err).NotTo(HaveOccurred())
		return driver
	})

	Describe("NewDriver", func() {
		It("creates a driver with file database", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")

			s, err := sqlite.NewDriver(context.Background(), dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps turns across reopen", func() {
			ctx := context.Background()
			dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")

			s, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Put(ctx, storagetest.NewTurn("t-1", "s-1", time.Now()))).To(Succeed())
			Expect(s.Close()).To(Succeed())

			s, err = sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			turns, err := s.ListSession(ctx, "s-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
		})
	})
})
