package diff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/walteh/promptls/pkg/diff"
)

type sample struct {
	Name  string
	Level int
	note  string
}

func TestPretty(t *testing.T) {
	assert.Empty(t, diff.Pretty(sample{Name: "a"}, sample{Name: "a", note: "ignored"}))

	got := diff.Pretty(sample{Name: "a", Level: 1}, sample{Name: "a", Level: 2})
	assert.Contains(t, got, "➕")
	assert.Contains(t, got, "➖")
	assert.Contains(t, got, "Level")
}

func TestTokenData(t *testing.T) {
	assert.Empty(t, diff.TokenData([]uint32{0, 0, 1, 0, 0}, []uint32{0, 0, 1, 0, 0}))

	got := diff.TokenData([]uint32{0, 0, 1, 0, 0, 0, 2, 1, 1, 0}, []uint32{0, 0, 1, 0, 0, 0, 2, 1, 2, 0})
	assert.Contains(t, got, "➕  1: [0 2 1 1 0]")
	assert.Contains(t, got, "➖  1: [0 2 1 2 0]")
	assert.NotContains(t, got, "➕  0:")
}
