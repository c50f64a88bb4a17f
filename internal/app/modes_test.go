package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortAddr(t *testing.T) {
	assert.Equal(t, "0xdfc2..f303", shortAddr("0xdfc24b077bc1425ad1dea75bcb6f8158e10df303"))
	assert.Equal(t, "0xabc", shortAddr("0xabc"))
	assert.Equal(t, "not-an-address", shortAddr("not-an-address"))
}
