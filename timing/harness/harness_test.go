package harness_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/instbuf/timing/handshake"
	"github.com/sarchlab/instbuf/timing/harness"
	"github.com/sarchlab/instbuf/timing/memory"
	"github.com/sarchlab/instbuf/timing/msg"
)

func newMemory() *memory.Memory {
	mem := memory.NewMemory()
	for addr := uint64(0); addr < 0x200; addr += 4 {
		mem.Write32(addr, uint32(0xA0000000)|uint32(addr))
	}
	return mem
}

var pattern = []uint32{0x00, 0x04, 0x08, 0x0C, 0x40, 0x00, 0x14, 0x18, 0x54}

var _ = Describe("Bench", func() {
	var mem *memory.Memory

	BeforeEach(func() {
		mem = newMemory()
	})

	DescribeTable("serving every request in order",
		func(
			mod func(*harness.Config),
			srcOpts []harness.SourceOption,
			sinkOpts []harness.SinkOption,
			wantRefills uint64,
		) {
			config := harness.DefaultConfig()
			mod(&config)

			reqs, resps := harness.Reads(mem, pattern...)
			src := harness.NewSource(reqs, srcOpts...)
			sink := harness.NewSink(resps, sinkOpts...)

			b, err := harness.NewBench(config, mem, src, sink)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Run(5000)).To(Succeed())

			Expect(sink.Received()).To(Equal(resps))

			t := b.Transfers()
			Expect(t.BuffReq).To(Equal(uint64(len(pattern))))
			Expect(t.BuffResp).To(Equal(uint64(len(pattern))))
			Expect(t.MemReq).To(Equal(wantRefills))
			Expect(t.MemResp).To(Equal(wantRefills))
			Expect(b.Unit().Stats().Misses).To(Equal(wantRefills))
		},
		Entry("with an ideal environment",
			func(*harness.Config) {}, nil, nil, uint64(5)),
		Entry("with random source delays",
			func(*harness.Config) {},
			[]harness.SourceOption{harness.WithSourceDelay(5, 1)},
			nil, uint64(5)),
		Entry("with random sink stalls",
			func(*harness.Config) {},
			nil,
			[]harness.SinkOption{harness.WithRandomStall(0.5, 2)},
			uint64(5)),
		Entry("with a fixed sink stall",
			func(*harness.Config) {},
			nil,
			[]harness.SinkOption{harness.WithFixedStall(3)},
			uint64(5)),
		Entry("with a slow jittery memory",
			func(c *harness.Config) {
				c.Memory.Latency = 10
				c.Memory.MaxJitter = 7
				c.Memory.Seed = 3
			},
			[]harness.SourceOption{harness.WithSourceDelay(3, 4)},
			[]harness.SinkOption{harness.WithRandomStall(0.3, 5)},
			uint64(5)),
		Entry("with two-way associativity",
			func(c *harness.Config) { c.Buffer.Associativity = 2 },
			nil, nil, uint64(4)),
		Entry("with 32-byte lines",
			func(c *harness.Config) {
				c.Buffer.LineBytes = 32
				c.Buffer.NumEntries = 2
			},
			nil, nil, uint64(4)),
	)

	It("should report a wrong response", func() {
		reqs, resps := harness.Reads(mem, 0x00, 0x04)
		resps[1].Data ^= 1

		b, err := harness.NewBench(harness.DefaultConfig(), mem,
			harness.NewSource(reqs), harness.NewSink(resps))
		Expect(err).NotTo(HaveOccurred())

		err = b.Run(100)
		Expect(errors.Is(err, harness.ErrMismatch)).To(BeTrue())
	})

	It("should report a timeout", func() {
		reqs, resps := harness.Reads(mem, 0x00)

		b, err := harness.NewBench(harness.DefaultConfig(), mem,
			harness.NewSource(reqs), harness.NewSink(resps))
		Expect(err).NotTo(HaveOccurred())

		err = b.Run(3)
		Expect(errors.Is(err, harness.ErrTimeout)).To(BeTrue())
	})

	It("should report surplus responses", func() {
		reqs, resps := harness.Reads(mem, 0x00, 0x04)

		b, err := harness.NewBench(harness.DefaultConfig(), mem,
			harness.NewSource(reqs), harness.NewSink(resps[:1]))
		Expect(err).NotTo(HaveOccurred())

		var runErr error
		for i := 0; i < 50 && runErr == nil; i++ {
			runErr = b.Tick()
		}
		Expect(errors.Is(runErr, harness.ErrUnexpected)).To(BeTrue())
	})

	It("should reject a bad configuration", func() {
		config := harness.DefaultConfig()
		config.Buffer.NumEntries = 0

		_, err := harness.NewBench(config, mem,
			harness.NewSource(nil), harness.NewSink(nil))
		Expect(err).To(HaveOccurred())
	})

	It("should write a line trace", func() {
		var buf bytes.Buffer
		reqs, resps := harness.Reads(mem, 0x00)

		b, err := harness.NewBench(harness.DefaultConfig(), mem,
			harness.NewSource(reqs), harness.NewSink(resps),
			harness.WithTrace(&buf))
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Run(100)).To(Succeed())

		out := buf.String()
		Expect(out).To(ContainSubstring("(TC)"))
		Expect(out).To(ContainSubstring("(WM)"))
		Expect(out).To(ContainSubstring("rd:00:00000000"))
	})
})

var _ = Describe("Source", func() {
	It("should hold a request until it is accepted", func() {
		src := harness.NewSource([]msg.Request{{Addr: 0x10}, {Addr: 0x20}})
		req := &handshake.Channel[msg.Request]{}
		src.Drive(req)
		Expect(req.Valid).To(BeTrue())
		Expect(req.Msg.Addr).To(Equal(uint32(0x10)))

		src.Commit(req)
		src.Drive(req)
		Expect(req.Msg.Addr).To(Equal(uint32(0x10)))

		req.Ready = true
		src.Commit(req)
		src.Drive(req)
		Expect(req.Msg.Addr).To(Equal(uint32(0x20)))
		Expect(src.Issued()).To(Equal(1))
	})
})

var _ = Describe("Reads", func() {
	It("should align response data to the word", func() {
		mem := newMemory()
		_, resps := harness.Reads(mem, 0x06)
		Expect(resps[0].Data).To(Equal(uint32(0xA0000004)))
	})
})
