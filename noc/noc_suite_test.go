package noc_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestNoC(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "NoC Suite")
}
