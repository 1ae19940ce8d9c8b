package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCloseCode(t *testing.T) {
	cases := []struct {
		code  int
		valid bool
	}{
		{999, false},
		{1000, true},
		{1001, true},
		{1003, true},
		{1004, false},
		{1005, false},
		{1006, false},
		{1007, true},
		{1011, true},
		{1012, false}, // reserved for future use, not yet assigned
		{1015, false},
		{1016, false},
		{2999, false},
		{3000, true},
		{4999, true},
		{5000, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.valid, ValidCloseCode(c.code), "code %d", c.code)
	}
}
