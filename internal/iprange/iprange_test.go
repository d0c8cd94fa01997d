// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package iprange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VVelox/meer/internal/errors"
)

func TestParseSet(t *testing.T) {
	s, err := ParseSet([]string{"10.0.0.0/8", "192.168.1.0/24", "172.16.5.9", "fd00::/8", ""})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	assert.True(t, s.ContainsString("10.255.0.1"))
	assert.True(t, s.ContainsString("192.168.1.200"))
	assert.True(t, s.ContainsString("172.16.5.9"), "bare address becomes a host route")
	assert.False(t, s.ContainsString("172.16.5.10"))
	assert.True(t, s.ContainsString("fd00::1234"))
	assert.False(t, s.ContainsString("8.8.8.8"))
}

func TestParseSetRejectsGarbage(t *testing.T) {
	_, err := ParseSet([]string{"10.0.0.0/33"})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.GetKind(err))

	_, err = ParseSet([]string{"not-an-ip"})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.GetKind(err))
}

func TestContainsMappedV4(t *testing.T) {
	s := MustParseSet([]string{"10.0.0.0/8"})
	assert.True(t, s.ContainsString("::ffff:10.1.2.3"))
}

func TestContainsUnparsable(t *testing.T) {
	s := MustParseSet([]string{"10.0.0.0/8"})
	assert.False(t, s.ContainsString(""))
	assert.False(t, s.ContainsString("bogus"))
}

func TestEmptySetContainsNothing(t *testing.T) {
	var s Set
	assert.True(t, s.Empty())
	assert.False(t, s.ContainsString("10.0.0.1"))
}
