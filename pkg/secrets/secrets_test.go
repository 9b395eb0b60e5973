package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"certledger/pkg/secrets"
)

func TestHashAndCompare(t *testing.T) {
	hash, err := secrets.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", hash)

	require.NoError(t, secrets.Compare(hash, "correct horse battery staple"))
	require.Error(t, secrets.Compare(hash, "wrong secret"))
}

func TestHashesAreSalted(t *testing.T) {
	first, err := secrets.Hash("same input")
	require.NoError(t, err)
	second, err := secrets.Hash("same input")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.NoError(t, secrets.Compare(first, "same input"))
	require.NoError(t, secrets.Compare(second, "same input"))
}
