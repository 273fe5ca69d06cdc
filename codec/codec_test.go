package codec_test

import (
	"bytes"
	"errors"
	"math"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tailored-agentic-units/filecache/codec"
)

func TestString(t *testing.T) {
	c := codec.String()

	if err := c.Test(""); err != nil {
		t.Errorf("Test(\"\") error = %v", err)
	}
	if err := c.Test("héllo"); err != nil {
		t.Errorf("Test(utf8) error = %v", err)
	}
	if err := c.Test(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("Test(invalid utf8) should fail")
	}

	b, err := c.ToBuffer("test")
	if err != nil {
		t.Fatalf("ToBuffer() error = %v", err)
	}
	if string(b) != "test" {
		t.Errorf("ToBuffer() = %q, want %q", b, "test")
	}

	got, err := codec.Decode(c, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != "test" {
		t.Errorf("Decode() = %q, want %q", got, "test")
	}
}

func TestJSON_Test(t *testing.T) {
	c := codec.JSON()

	pass := []any{"", map[string]any{}, 0.0, nil, false, []any{1.0, "a"}}
	for _, v := range pass {
		if err := c.Test(v); err != nil {
			t.Errorf("Test(%#v) error = %v", v, err)
		}
	}

	fail := []any{
		math.NaN(), make(chan int), func() {}, map[string]any{"inf": math.Inf(1)},
		1, map[string]int{"a": 1}, []any{1, "a"},
	}
	for _, v := range fail {
		err := c.Test(v)
		if err == nil {
			t.Errorf("Test(%T) should fail", v)
			continue
		}
		if !strings.Contains(err.Error(), "json") {
			t.Errorf("Test(%T) reason = %q, want encoder error text", v, err)
		}
	}
}

func TestJSON_Buffers(t *testing.T) {
	c := codec.JSON()

	tests := []struct {
		value any
		raw   string
	}{
		{value: 0.0, raw: "0"},
		{value: "", raw: `""`},
		{value: map[string]any{}, raw: "{}"},
		{value: nil, raw: "null"},
		{value: true, raw: "true"},
		{value: map[string]any{"r": 0.0}, raw: `{"r":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			b, err := c.ToBuffer(tt.value)
			if err != nil {
				t.Fatalf("ToBuffer() error = %v", err)
			}
			if string(b) != tt.raw {
				t.Errorf("ToBuffer() = %s, want %s", b, tt.raw)
			}

			got, err := c.FromBuffer([]byte(tt.raw))
			if err != nil {
				t.Fatalf("FromBuffer() error = %v", err)
			}
			if diff := cmp.Diff(tt.value, got); diff != "" {
				t.Errorf("FromBuffer() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJSON_FromBufferErrors(t *testing.T) {
	c := codec.JSON()

	for _, raw := range []string{"{", `{"a":1} {"b":2}`, ""} {
		if _, err := c.FromBuffer([]byte(raw)); !errors.Is(err, codec.ErrDecode) {
			t.Errorf("FromBuffer(%q) error = %v, want %v", raw, err, codec.ErrDecode)
		}
	}
}

func TestJSONOf(t *testing.T) {
	type point struct {
		X, Y int
	}
	c := codec.JSONOf[point]()

	got, err := codec.RoundTrip(c, point{X: 1, Y: 2})
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	if got != (point{X: 1, Y: 2}) {
		t.Errorf("RoundTrip() = %+v", got)
	}
}

type account struct {
	Name    string
	Balance *big.Int
	Note    *string
	Tags    []string
}

func TestGob_RoundTrip(t *testing.T) {
	c := codec.Gob[account](nil)

	balance, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	note := "vip"
	tests := []account{
		{Name: "a", Balance: balance, Note: &note, Tags: []string{"x"}},
		{Name: "b", Balance: big.NewInt(-1)},
	}

	bigCmp := cmp.Comparer(func(a, b *big.Int) bool {
		if a == nil || b == nil {
			return a == b
		}
		return a.Cmp(b) == 0
	})

	for _, want := range tests {
		got, err := codec.RoundTrip(c, want)
		if err != nil {
			t.Fatalf("RoundTrip(%s) error = %v", want.Name, err)
		}
		if diff := cmp.Diff(want, got, bigCmp); diff != "" {
			t.Errorf("RoundTrip(%s) mismatch (-want +got):\n%s", want.Name, diff)
		}
	}
}

func TestGob_SchemaValidation(t *testing.T) {
	schema := codec.SchemaFunc[account](func(a account) error {
		if a.Name == "" {
			return errors.New("name: required")
		}
		if a.Balance == nil {
			return errors.New("balance: required")
		}
		return nil
	})
	c := codec.Gob[account](schema)

	if err := c.Test(account{Name: "ok", Balance: big.NewInt(1)}); err != nil {
		t.Errorf("Test(valid) error = %v", err)
	}
	if err := c.Test(account{Balance: big.NewInt(1)}); err == nil || err.Error() != "name: required" {
		t.Errorf("Test(no name) error = %v, want %q", err, "name: required")
	}
	if _, err := codec.RoundTrip(c, account{Name: "x"}); err == nil {
		t.Error("RoundTrip() should stop at Test")
	}
}

func TestGob_FromBufferError(t *testing.T) {
	if _, err := codec.Gob[account](nil).FromBuffer([]byte("garbage")); !errors.Is(err, codec.ErrDecode) {
		t.Errorf("FromBuffer() error = %v, want %v", err, codec.ErrDecode)
	}
}

func TestProto_RoundTrip(t *testing.T) {
	c := codec.Proto(func() *structpb.Struct { return new(structpb.Struct) })

	want, err := structpb.NewStruct(map[string]any{
		"r": 1,
		"j": map[string]any{"t": "teste"},
	})
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}

	b1, err := c.ToBuffer(want)
	if err != nil {
		t.Fatalf("ToBuffer() error = %v", err)
	}
	b2, _ := c.ToBuffer(want)
	if !bytes.Equal(b1, b2) {
		t.Error("ToBuffer() not deterministic")
	}

	got, err := codec.RoundTrip(c, want)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	if !proto.Equal(want, got) {
		t.Errorf("RoundTrip() = %v, want %v", got, want)
	}
}

func TestProto_Test(t *testing.T) {
	nonEmpty := func(v *wrapperspb.StringValue) error {
		if v.GetValue() == "" {
			return errors.New("value: empty")
		}
		return nil
	}
	c := codec.Proto(func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }, nonEmpty)

	if err := c.Test(wrapperspb.String("x")); err != nil {
		t.Errorf("Test(valid) error = %v", err)
	}
	if err := c.Test(wrapperspb.String("")); err == nil {
		t.Error("Test(empty) should fail validator")
	}
	if err := c.Test(nil); err == nil {
		t.Error("Test(nil) should fail")
	}
}

func TestProto_FromBufferError(t *testing.T) {
	c := codec.Proto(func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) })

	if _, err := c.FromBuffer([]byte{0xff}); !errors.Is(err, codec.ErrDecode) {
		t.Errorf("FromBuffer() error = %v, want %v", err, codec.ErrDecode)
	}
}

func TestNames(t *testing.T) {
	names := []string{
		codec.String().Name(),
		codec.JSON().Name(),
		codec.Gob[account](nil).Name(),
		codec.Proto(func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }).Name(),
	}
	if diff := cmp.Diff([]string{"string", "json", "gob", "proto"}, names); diff != "" {
		t.Errorf("Name() mismatch (-want +got):\n%s", diff)
	}
}

type record struct {
	N      int
	Note   *string
	Tags   []string
	Counts map[string]int
}

func wideMap[V any](n int, value func(int) V) map[string]V {
	m := make(map[string]V, n)
	for i := range n {
		m[fmt.Sprintf("k%02d", i)] = value(i)
	}
	return m
}

// checkRoundTrip asserts that Test decides accept, and that an accepted value
// encodes to the same bytes every time and decodes back equal.
func checkRoundTrip[T any](t *testing.T, c codec.Codec[T], v T, accept bool) {
	t.Helper()

	err := c.Test(v)
	if !accept {
		if err == nil {
			t.Fatalf("Test(%#v) should fail", v)
		}
		return
	}
	if err != nil {
		t.Fatalf("Test(%#v) error = %v", v, err)
	}

	b, err := c.ToBuffer(v)
	if err != nil {
		t.Fatalf("ToBuffer() error = %v", err)
	}
	for range 20 {
		again, err := c.ToBuffer(v)
		if err != nil {
			t.Fatalf("ToBuffer() error = %v", err)
		}
		if !bytes.Equal(b, again) {
			t.Fatal("ToBuffer() not deterministic")
		}
	}

	got, err := c.FromBuffer(b)
	if err != nil {
		t.Fatalf("FromBuffer() error = %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("FromBuffer() mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_AcceptedValuesSurvive(t *testing.T) {
	empty := ""
	note := "x"
	float := func(i int) float64 { return float64(i) }
	integer := func(i int) int { return i }

	type point struct {
		X, Y int
	}

	tests := []struct {
		name string
		run  func(t *testing.T)
	}{
		{"string", func(t *testing.T) { checkRoundTrip(t, codec.String(), "héllo", true) }},
		{"string empty", func(t *testing.T) { checkRoundTrip(t, codec.String(), "", true) }},

		{"json int", func(t *testing.T) { checkRoundTrip[any](t, codec.JSON(), 1, false) }},
		{"json float", func(t *testing.T) { checkRoundTrip[any](t, codec.JSON(), 1.5, true) }},
		{"json typed map", func(t *testing.T) { checkRoundTrip[any](t, codec.JSON(), map[string]int{"a": 1}, false) }},
		{"json struct", func(t *testing.T) { checkRoundTrip[any](t, codec.JSON(), point{X: 1}, false) }},
		{"json empty slice", func(t *testing.T) { checkRoundTrip[any](t, codec.JSON(), []any{}, true) }},
		{"json wide map", func(t *testing.T) { checkRoundTrip[any](t, codec.JSON(), any(wideMap(50, float)), true) }},

		{"jsonof int", func(t *testing.T) { checkRoundTrip(t, codec.JSONOf[int](), 42, true) }},
		{"jsonof typed map", func(t *testing.T) { checkRoundTrip(t, codec.JSONOf[map[string]int](), wideMap(50, integer), true) }},
		{"jsonof struct", func(t *testing.T) { checkRoundTrip(t, codec.JSONOf[point](), point{X: 1, Y: 2}, true) }},
		{"jsonof pointer to zero", func(t *testing.T) {
			checkRoundTrip(t, codec.JSONOf[record](), record{Note: &empty, Tags: []string{}, Counts: map[string]int{}}, true)
		}},

		{"gob int", func(t *testing.T) { checkRoundTrip(t, codec.Gob[int](nil), 42, true) }},
		{"gob struct", func(t *testing.T) {
			checkRoundTrip(t, codec.Gob[record](nil), record{N: 7, Note: &note, Tags: []string{"a"}, Counts: map[string]int{"a": 1}}, true)
		}},
		{"gob zero struct", func(t *testing.T) { checkRoundTrip(t, codec.Gob[record](nil), record{}, true) }},
		{"gob pointer to zero", func(t *testing.T) { checkRoundTrip(t, codec.Gob[record](nil), record{Note: &empty}, false) }},
		{"gob empty slice", func(t *testing.T) { checkRoundTrip(t, codec.Gob[record](nil), record{Tags: []string{}}, false) }},
		{"gob empty map", func(t *testing.T) { checkRoundTrip(t, codec.Gob[record](nil), record{Counts: map[string]int{}}, false) }},
		{"gob wide map", func(t *testing.T) { checkRoundTrip(t, codec.Gob[record](nil), record{Counts: wideMap(50, integer)}, false) }},
		{"gob nested wide map", func(t *testing.T) {
			checkRoundTrip(t, codec.Gob[[]map[string]int](nil), []map[string]int{{"a": 1}, wideMap(3, integer)}, false)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.run)
	}
}

func TestGob_MapRejectionReason(t *testing.T) {
	err := codec.Gob[record](nil).Test(record{Counts: wideMap(2, func(i int) int { return i })})
	if err == nil || !strings.Contains(err.Error(), "no stable encoding") {
		t.Errorf("Test(wide map) error = %v, want stable encoding reason", err)
	}
}
