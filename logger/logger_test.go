package logger_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/odsync/logger"
)

var _ = Describe("Logger", func() {
	var (
		logOutput *bytes.Buffer
		log       *logger.LoggerImpl
	)

	BeforeEach(func() {
		logOutput = bytes.NewBufferString("")
		log = logger.NewTestLogger(logOutput)
	})

	decode := func() map[string]interface{} {
		var actual map[string]interface{}
		Expect(json.Unmarshal(logOutput.Bytes(), &actual)).To(Succeed())
		return actual
	}

	It("Should have `test` as service name", func() {
		log.Info("Testing")
		Expect(decode()["service"]).To(Equal("test"))
	})

	It("Should have info as log level", func() {
		log.Info("Testing")
		Expect(decode()["level"]).To(Equal("info"))
	})

	It("Should have warning as log level", func() {
		log.Warn("Testing")
		Expect(decode()["level"]).To(Equal("warning"))
	})

	It("Should have `Testing` as msg", func() {
		log.Info("Testing")
		Expect(decode()["msg"]).To(Equal("Testing"))
	})

	It("Should carry fields added with WithFields", func() {
		log.WithFields(map[string]interface{}{"table": "client", "runId": "abc"}).Info("Testing")
		actual := decode()
		Expect(actual["table"]).To(Equal("client"))
		Expect(actual["runId"]).To(Equal("abc"))
		Expect(actual["service"]).To(Equal("test"))
	})

	It("Should add a stack trace to errors when stack dumps are enabled", func() {
		log.PrintStackDump = true
		log.Error("Testing")
		actual := decode()
		Expect(actual["level"]).To(Equal("error"))
		Expect(actual["stackTrace"]).ToNot(BeNil())
	})
})
