package mirror

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	bolt "go.etcd.io/bbolt"

	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/types/environments"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

func newOperation(id string, status model.OperationStatus, createdAt time.Time) *model.Operation {
	return &model.Operation{
		ID:           id,
		Direction:    model.DirectionScrtToEth,
		AssetKind:    model.AssetKindNative,
		Asset:        model.CanonicalAsset{Symbol: "ETH", Decimals: 18, Image: "eth.png"},
		Amount:       "1500000000000000000",
		Decimals:     18,
		SourceTxHash: "ABC|secret1token",
		Status:       status,
		CreatedAt:    createdAt,
	}
}

var _ = Describe("Mirror", func() {
	var (
		m    IMirror
		path string
		now  time.Time
	)

	BeforeEach(func() {
		var err error
		path = filepath.Join(GinkgoT().TempDir(), "nested", "mirror.db")
		m, err = Open(path, logger.New(environments.Test))
		Expect(err).NotTo(HaveOccurred())
		now = time.Now().UTC()
	})

	AfterEach(func() {
		Expect(m.Close()).To(Succeed())
	})

	Describe("#Save", func() {
		It("stores the summary under the operations key", func() {
			Expect(m.Save(newOperation("op-1", model.OperationStatusSubmitted, now))).To(Succeed())

			entry, ok := m.Get("op-1")
			Expect(ok).To(BeTrue())
			Expect(entry.Amount).To(Equal("1.5"))
			Expect(entry.FromToken).To(Equal("ETH"))
			Expect(entry.TokenImage).To(Equal("eth.png"))
			Expect(entry.Mode).To(Equal(model.DirectionScrtToEth))
		})

		It("replaces an existing entry instead of duplicating it", func() {
			op := newOperation("op-1", model.OperationStatusSubmitted, now)
			Expect(m.Save(op)).To(Succeed())
			op.Status = model.OperationStatusConfirmed
			Expect(m.Save(op)).To(Succeed())

			Expect(m.List()).To(HaveLen(1))
			entry, _ := m.Get("op-1")
			Expect(entry.Operation.Status).To(Equal(model.OperationStatusConfirmed))
		})

		It("rejects operations without id", func() {
			Expect(m.Save(&model.Operation{})).NotTo(Succeed())
		})

		It("survives reopening the file", func() {
			Expect(m.Save(newOperation("op-1", model.OperationStatusSubmitted, now))).To(Succeed())
			Expect(m.Close()).To(Succeed())

			var err error
			m, err = Open(path, logger.New(environments.Test))
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ListInFlight()).To(HaveLen(1))
		})
	})

	Describe("#ListInFlight", func() {
		It("returns non terminal operations oldest first", func() {
			Expect(m.Save(newOperation("newer", model.OperationStatusAwaitingConfirmation, now))).To(Succeed())
			Expect(m.Save(newOperation("done", model.OperationStatusConfirmed, now.Add(-time.Hour)))).To(Succeed())
			Expect(m.Save(newOperation("older", model.OperationStatusSubmitted, now.Add(-time.Minute)))).To(Succeed())
			Expect(m.Save(newOperation("failed", model.OperationStatusFailed, now.Add(-2*time.Minute)))).To(Succeed())

			ops := m.ListInFlight()
			Expect(ops).To(HaveLen(2))
			Expect(ops[0].ID).To(Equal("older"))
			Expect(ops[1].ID).To(Equal("newer"))
		})

		It("returns an empty sequence for an empty store", func() {
			Expect(m.ListInFlight()).To(BeEmpty())
			Expect(m.List()).To(BeEmpty())
		})
	})

	Describe("corrupt storage", func() {
		BeforeEach(func() {
			db := m.(*boltMirror).db
			Expect(db.Update(func(tx *bolt.Tx) error {
				return tx.Bucket(mirrorBucketKey).Put(operationsKey, []byte("{not json"))
			})).To(Succeed())
		})

		It("reads as empty", func() {
			Expect(m.List()).To(BeEmpty())
			Expect(m.ListInFlight()).To(BeEmpty())
		})

		It("is overwritten by the next save", func() {
			Expect(m.Save(newOperation("op-1", model.OperationStatusSubmitted, now))).To(Succeed())
			Expect(m.ListInFlight()).To(HaveLen(1))
		})
	})

	Describe("#Remove", func() {
		It("drops only the given entry", func() {
			Expect(m.Save(newOperation("op-1", model.OperationStatusSubmitted, now))).To(Succeed())
			Expect(m.Save(newOperation("op-2", model.OperationStatusSubmitted, now))).To(Succeed())

			Expect(m.Remove("op-1")).To(Succeed())
			Expect(m.Remove("missing")).To(Succeed())

			_, ok := m.Get("op-1")
			Expect(ok).To(BeFalse())
			Expect(m.List()).To(HaveLen(1))
		})
	})
})
