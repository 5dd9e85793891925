package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpKind(t *testing.T) {
	for in, want := range map[string]OpKind{
		"CREATE": OpCreate,
		"update": OpUpdate,
		"Delete": OpDelete,
	} {
		got, err := ParseOpKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseOpKind("MERGE")
	assert.Error(t, err)
}
