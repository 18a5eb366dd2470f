package factory

import (
	"strings"
	"testing"

	"github.com/flusio/minz-worker/test"
)

func ExampleCreateSampleJob() {
	t := &testing.T{}
	CreateSampleJob(t, RandomQueue("example"))
}

func TestRandomQueue(t *testing.T) {
	a := RandomQueue("fetchers")
	b := RandomQueue("fetchers")
	test.Assert(t, a != b, "queue names should differ")
	test.Assert(t, strings.HasPrefix(a, "fetchers_"), a)
	test.Assert(t, strings.HasSuffix(a, "_q"), a)
}
