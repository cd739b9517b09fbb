package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `50\% off\_now\\`, EscapeLike(`50% off_now\`))
	require.Equal(t, "plain", EscapeLike("plain"))
}
