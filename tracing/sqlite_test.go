package tracing_test

import (
	"database/sql"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/instbuf/tracing"
)

var _ = Describe("SQLiteWriter", func() {
	var (
		path string
		w    *tracing.SQLiteWriter
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "trace.sqlite3")
		w = tracing.NewSQLiteWriter(path).WithBatchSize(4)
	})

	AfterEach(func() {
		_ = w.Close()
	})

	count := func() int {
		var n int
		Expect(w.QueryRow("SELECT COUNT(*) FROM trace").Scan(&n)).To(Succeed())
		return n
	}

	It("should refuse writes before Init", func() {
		Expect(w.Write(tracing.Event{})).To(MatchError(tracing.ErrNotInitialized))
	})

	It("should insert events in batches", func() {
		Expect(w.Init()).To(Succeed())
		Expect(w.Path()).To(Equal(path))

		for i := 0; i < 3; i++ {
			Expect(w.Write(tracing.Event{
				Session: "s", Cycle: uint64(i), Unit: "InstBuffer", Kind: tracing.KindState,
			})).To(Succeed())
		}
		Expect(count()).To(BeZero())

		Expect(w.Write(tracing.Event{Session: "s", Cycle: 3, Unit: "InstBuffer", Kind: tracing.KindReqAccept})).
			To(Succeed())
		Expect(count()).To(Equal(4))

		Expect(w.Write(tracing.Event{Session: "s", Cycle: 4, Unit: "InstBuffer", Kind: tracing.KindRespIssue})).
			To(Succeed())
		Expect(w.Flush()).To(Succeed())
		Expect(count()).To(Equal(5))

		var kind string
		Expect(w.QueryRow("SELECT kind FROM trace WHERE cycle = 3").Scan(&kind)).To(Succeed())
		Expect(kind).To(Equal(tracing.KindReqAccept))
	})

	It("should record a full run", func() {
		Expect(w.Init()).To(Succeed())

		r := tracing.NewRecorder(w)
		runBench(r, 0x00, 0x04, 0x40)
		Expect(r.Err()).NotTo(HaveOccurred())
		Expect(r.Flush()).To(Succeed())

		Expect(count()).To(Equal(int(r.Count())))

		var refills int
		Expect(w.QueryRow(
			"SELECT COUNT(*) FROM trace WHERE kind = ?", tracing.KindRefillDone,
		).Scan(&refills)).To(Succeed())
		Expect(refills).To(Equal(2))
	})

	It("should flush buffered events on Close", func() {
		Expect(w.Init()).To(Succeed())
		Expect(w.Write(tracing.Event{Session: "s", Cycle: 7, Unit: "InstBuffer", Kind: tracing.KindState})).
			To(Succeed())

		Expect(w.Close()).To(Succeed())
		Expect(w.Close()).To(Succeed())

		db, err := sql.Open("sqlite3", path)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = db.Close() }()

		var n int
		Expect(db.QueryRow("SELECT COUNT(*) FROM trace").Scan(&n)).To(Succeed())
		Expect(n).To(Equal(1))
	})

	It("should not overwrite an existing database", func() {
		Expect(w.Init()).To(Succeed())
		Expect(w.Close()).To(Succeed())

		again := tracing.NewSQLiteWriter(path)
		Expect(again.Init()).To(MatchError(ContainSubstring("already exists")))
	})
})
