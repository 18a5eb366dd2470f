package models_test

import (
	"encoding/json"
	"testing"

	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/test"
)

func TestArgsRoundtrip(t *testing.T) {
	t.Parallel()
	args := models.Args{
		models.String("https://example.com/feed.xml"),
		models.Int(-42),
		models.Int(9007199254740993),
		models.Bool(true),
		models.Bool(false),
		models.Null(),
		models.String(""),
	}
	v, err := args.Value()
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, v, `["https://example.com/feed.xml",-42,9007199254740993,true,false,null,""]`)

	var got models.Args
	err = got.Scan([]byte(v.(string)))
	test.AssertNotError(t, err, "")
	test.AssertDeepEquals(t, got, args)
}

func TestArgsEmptyIsArray(t *testing.T) {
	t.Parallel()
	var args models.Args
	b, err := json.Marshal(args)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, string(b), "[]")

	var got models.Args
	test.AssertNotError(t, got.Scan(nil), "")
	test.AssertEquals(t, len(got), 0)
}

var invalidArgs = []string{
	`[1.5]`,
	`[1e3]`,
	`[{"a": 1}]`,
	`[[1]]`,
	`{"a": 1}`,
}

func TestArgsRejectsNonScalars(t *testing.T) {
	t.Parallel()
	for _, in := range invalidArgs {
		var a models.Args
		err := a.Scan(in)
		test.AssertError(t, err, in)
	}
}

func TestArgsAccessors(t *testing.T) {
	t.Parallel()
	args, err := models.NewArgs("feed", 7, true, nil)
	test.AssertNotError(t, err, "")

	s, err := args.String(0)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, s, "feed")

	i, err := args.Int(1)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, i, int64(7))

	b, err := args.Bool(2)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, b, true)

	test.Assert(t, args.IsNull(3), "expected arg 3 to be null")
	test.Assert(t, !args.IsNull(4), "arg 4 does not exist")

	_, err = args.Int(0)
	test.AssertError(t, err, "string read as int")
	_, err = args.String(9)
	test.AssertError(t, err, "out of range")
}

func TestNewArgsUnsupportedType(t *testing.T) {
	t.Parallel()
	_, err := models.NewArgs(1.5)
	test.AssertError(t, err, "")
	_, err = models.NewArgs([]string{"a"})
	test.AssertError(t, err, "")
}

func TestArgInterface(t *testing.T) {
	t.Parallel()
	test.AssertEquals(t, models.String("a").Interface(), "a")
	test.AssertEquals(t, models.Int(3).Interface(), int64(3))
	test.AssertEquals(t, models.Bool(true).Interface(), true)
	test.AssertEquals(t, models.Null().Interface(), nil)
	test.AssertEquals(t, models.Null().Kind(), models.KindNull)
}
