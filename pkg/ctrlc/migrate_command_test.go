package ctrlc

import (
	"testing"

	"github.com/lab5e/flowfunk/pkg/affinity"
	"github.com/stretchr/testify/require"
)

func TestParseMoves(t *testing.T) {
	assert := require.New(t)

	moves, err := parseMoves([]string{"1:0", "17:3"})
	assert.NoError(err)
	assert.Equal([]affinity.Move{{Group: 1, To: 0}, {Group: 17, To: 3}}, moves)

	moves, err = parseMoves(nil)
	assert.NoError(err)
	assert.Empty(moves)

	for _, bad := range []string{"1", "1:2:3", "a:1", "1:b", "-1:0", ":"} {
		_, err := parseMoves([]string{bad})
		assert.Error(err, "%q should not parse", bad)
	}
}
