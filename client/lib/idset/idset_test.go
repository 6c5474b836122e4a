package idset

import (
	"testing"

	"github.com/shoenig/test/must"
)

func Test_Parse(t *testing.T) {
	cases := []struct {
		input string
		exp   []uint16
	}{
		{input: "0", exp: []uint16{0}},
		{input: "1,3,5,9", exp: []uint16{1, 3, 5, 9}},
		{input: "1-2", exp: []uint16{1, 2}},
		{input: "3-6", exp: []uint16{3, 4, 5, 6}},
		{input: "1,3-5,9,11-14", exp: []uint16{1, 3, 4, 5, 9, 11, 12, 13, 14}},
		{input: " 4-2 , 9-9 , 11-7\n", exp: []uint16{2, 3, 4, 7, 8, 9, 10, 11}},
		{input: "", exp: []uint16{}},
	}

	for _, tc := range cases {
		t.Run("("+tc.input+")", func(t *testing.T) {
			result := Parse[uint16](tc.input).Slice()
			must.SliceContainsAll(t, tc.exp, result, must.Sprint("got", result))
		})
	}
}

func Test_String(t *testing.T) {
	cases := []struct {
		input string
		exp   string
	}{
		{input: "0", exp: "0"},
		{input: "1-3", exp: "1-3"},
		{input: "1, 2, 3", exp: "1-3"},
		{input: "7, 1-3, 12-9", exp: "1-3,7,9-12"},
	}

	for _, tc := range cases {
		t.Run("("+tc.input+")", func(t *testing.T) {
			result := Parse[uint16](tc.input)
			str := result.String()
			must.Eq(t, tc.exp, str, must.Sprint("slice", result.Slice()))
		})
	}
}

func Test_Union_Difference(t *testing.T) {
	a := From[uint16]([]uint16{1, 2, 3})
	b := From[uint16]([]uint16{3, 4, 5})

	must.Eq(t, "1-5", a.Union(b).String())
	must.Eq(t, "1-2", a.Difference(b).String())
}

func Test_Contains_Remove(t *testing.T) {
	s := From[uint16]([]uint16{1, 2, 3})
	must.True(t, s.Contains(2))
	s.Remove(2)
	must.False(t, s.Contains(2))
	must.Eq(t, 2, s.Size())
}
