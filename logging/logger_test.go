package logging_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/sarchlab/instbuf/logging"
)

var _ = Describe("Logging", func() {
	AfterEach(func() {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	DescribeTable("parsing levels",
		func(name string, want zerolog.Level) {
			level, err := logging.ParseLevel(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(level).To(Equal(want))
		},
		Entry("trace", "trace", zerolog.TraceLevel),
		Entry("debug", "DEBUG", zerolog.DebugLevel),
		Entry("info", "info", zerolog.InfoLevel),
		Entry("empty", "", zerolog.InfoLevel),
		Entry("warning", "warning", zerolog.WarnLevel),
		Entry("error", "error", zerolog.ErrorLevel),
	)

	It("should reject unknown levels", func() {
		_, err := logging.ParseLevel("loud")
		Expect(err).To(MatchError(ContainSubstring("unknown log level")))
	})

	It("should write JSON with the component name", func() {
		var buf bytes.Buffer
		logging.Setup(logging.Config{
			Level:  logging.LevelDebug,
			Output: &buf,
		})

		logger := logging.NewLogger("instbuf")
		logger.Debug().Int("set", 2).Msg("refill installed")

		var entry map[string]interface{}
		Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
		Expect(entry["component"]).To(Equal("instbuf"))
		Expect(entry["message"]).To(Equal("refill installed"))
		Expect(entry["set"]).To(BeNumerically("==", 2))
	})

	It("should drop messages below the level", func() {
		var buf bytes.Buffer
		logger := logging.Setup(logging.Config{
			Level:  logging.LevelWarn,
			Output: &buf,
		})

		logger.Debug().Msg("hidden")
		Expect(buf.Len()).To(BeZero())

		logger.Warn().Msg("shown")
		Expect(buf.String()).To(ContainSubstring("shown"))
	})
})
