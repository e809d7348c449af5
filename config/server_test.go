package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitListTrimsAndDropsBlanks(t *testing.T) {
	assert.Equal(t,
		[]string{"http://localhost:5173", "https://app.example.com"},
		splitList(" http://localhost:5173 , https://app.example.com ,, "),
	)
}

func TestSplitListSingleWildcard(t *testing.T) {
	assert.Equal(t, []string{"*"}, splitList("*"))
}
