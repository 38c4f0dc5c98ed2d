package tracing_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/instbuf/timing/harness"
	"github.com/sarchlab/instbuf/timing/memory"
	"github.com/sarchlab/instbuf/tracing"
)

// runBench runs reads of addrs through a default bench with r attached.
func runBench(r *tracing.Recorder, addrs ...uint32) {
	mem := memory.NewMemory()
	reqs, resps := harness.Reads(mem, addrs...)

	b, err := harness.NewBench(harness.DefaultConfig(), mem,
		harness.NewSource(reqs), harness.NewSink(resps),
		harness.WithHook(r))
	Expect(err).NotTo(HaveOccurred())
	Expect(b.Run(1000)).To(Succeed())
}

var _ = Describe("Recorder", func() {
	var (
		mockCtrl *gomock.Controller
		writer   *MockWriter
		recorder *tracing.Recorder
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		writer = NewMockWriter(mockCtrl)
		recorder = tracing.NewRecorder(writer)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should write one event per hook invocation", func() {
		var events []tracing.Event
		writer.EXPECT().Write(gomock.Any()).
			DoAndReturn(func(e tracing.Event) error {
				events = append(events, e)
				return nil
			}).AnyTimes()

		runBench(recorder, 0x00)

		kinds := map[string]int{}
		for _, e := range events {
			kinds[e.Kind]++
			Expect(e.Session).To(Equal(recorder.Session()))
			Expect(e.Unit).To(Equal("InstBuffer"))
		}

		// IDLE -> TC -> RD -> RR -> RW -> RU -> WM -> IDLE
		Expect(kinds[tracing.KindState]).To(Equal(7))
		Expect(kinds[tracing.KindReqAccept]).To(Equal(1))
		Expect(kinds[tracing.KindRefillIssue]).To(Equal(1))
		Expect(kinds[tracing.KindRefillDone]).To(Equal(1))
		Expect(kinds[tracing.KindRespIssue]).To(Equal(1))
		Expect(recorder.Count()).To(Equal(uint64(len(events))))

		Expect(events[0].Kind).To(Equal(tracing.KindReqAccept))
		Expect(events[0].Cycle).To(BeZero())
		Expect(events[1].What).To(Equal("IDLE->TAG_CHECK"))
	})

	It("should describe evictions", func() {
		var refills []tracing.Event
		writer.EXPECT().Write(gomock.Any()).
			DoAndReturn(func(e tracing.Event) error {
				if e.Kind == tracing.KindRefillDone {
					refills = append(refills, e)
				}
				return nil
			}).AnyTimes()

		runBench(recorder, 0x00, 0x40)

		Expect(refills).To(HaveLen(2))
		Expect(refills[0].Detail).To(Equal("set=0 way=0"))
		Expect(refills[1].What).To(Equal("00000040"))
		Expect(refills[1].Detail).To(Equal("set=0 way=0 evicted=00000000"))
	})

	It("should stop writing after an error", func() {
		writer.EXPECT().Write(gomock.Any()).Return(errors.New("disk full")).Times(1)

		runBench(recorder, 0x00)

		Expect(recorder.Err()).To(MatchError(ContainSubstring("disk full")))
		Expect(recorder.Count()).To(BeZero())
	})

	It("should flush the writer", func() {
		writer.EXPECT().Flush().Return(nil)
		Expect(recorder.Flush()).To(Succeed())
	})
})
