package protocol

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	s1, err := GenerateSecret()
	require.NoError(t, err)
	s2, err := GenerateSecret()
	require.NoError(t, err)

	assert.True(t, IsHex64(s1))
	assert.True(t, IsHex64(s2))
	assert.NotEqual(t, s1, s2)
}

func TestComputeCommitmentDeterminism(t *testing.T) {
	secret := strings.Repeat("ab", 32)

	c1, err := ComputeCommitment("axm1abc", SideHeads, secret)
	require.NoError(t, err)
	c2, err := ComputeCommitment("axm1abc", SideHeads, secret)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.True(t, IsHex64(c1))
}

func TestComputeCommitmentAvalanche(t *testing.T) {
	secret := strings.Repeat("aa", 32)
	base, err := ComputeCommitment("axm1abc", SideHeads, secret)
	require.NoError(t, err)

	// Different address
	c, err := ComputeCommitment("axm1abd", SideHeads, secret)
	require.NoError(t, err)
	assert.NotEqual(t, base, c)

	// Different side
	c, err = ComputeCommitment("axm1abc", SideTails, secret)
	require.NoError(t, err)
	assert.NotEqual(t, base, c)

	// Single hex digit of the secret flipped
	flipped := "ba" + secret[2:]
	c, err = ComputeCommitment("axm1abc", SideHeads, flipped)
	require.NoError(t, err)
	assert.NotEqual(t, base, c)
}

func TestComputeCommitmentRejectsMalformed(t *testing.T) {
	_, err := ComputeCommitment("axm1abc", SideHeads, "deadbeef")
	assert.Error(t, err)

	_, err = ComputeCommitment("axm1abc", SideHeads, strings.Repeat("zz", 32))
	assert.Error(t, err)

	_, err = ComputeCommitment("axm1abc", Side("edge"), strings.Repeat("aa", 32))
	assert.Error(t, err)

	_, err = ComputeCommitment("", SideHeads, strings.Repeat("aa", 32))
	assert.Error(t, err)
}

func TestVerifyReveal(t *testing.T) {
	secret := strings.Repeat("aa", 32)
	commitment, err := ComputeCommitment("axm1abc", SideHeads, secret)
	require.NoError(t, err)

	assert.True(t, VerifyReveal(commitment, "axm1abc", SideHeads, secret))
	assert.True(t, VerifyReveal(strings.ToUpper(commitment), "axm1abc", SideHeads, secret))

	// Wrong side
	assert.False(t, VerifyReveal(commitment, "axm1abc", SideTails, secret))
	// Wrong address
	assert.False(t, VerifyReveal(commitment, "axm1xyz", SideHeads, secret))
	// Wrong secret
	assert.False(t, VerifyReveal(commitment, "axm1abc", SideHeads, strings.Repeat("bb", 32)))
}

func TestVerifyRevealMalformedInput(t *testing.T) {
	secret := strings.Repeat("aa", 32)

	assert.False(t, VerifyReveal("short", "axm1abc", SideHeads, secret))
	assert.False(t, VerifyReveal(strings.Repeat("zz", 32), "axm1abc", SideHeads, secret))
	assert.False(t, VerifyReveal(strings.Repeat("aa", 32), "axm1abc", SideHeads, "short"))
	assert.False(t, VerifyReveal("", "axm1abc", SideHeads, ""))
}

func TestNormalizeCommitment(t *testing.T) {
	secret := strings.Repeat("cd", 32)
	commitment, err := ComputeCommitment("axm1abc", SideTails, secret)
	require.NoError(t, err)

	// Hex passes through lowercased
	got, err := NormalizeCommitment(strings.ToUpper(commitment))
	require.NoError(t, err)
	assert.Equal(t, commitment, got)

	// Base64, as the chain reports Binary fields
	raw, err := hex.DecodeString(commitment)
	require.NoError(t, err)
	got, err = NormalizeCommitment(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, commitment, got)

	_, err = NormalizeCommitment("not-a-commitment")
	assert.Error(t, err)
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide("HEADS")
	require.NoError(t, err)
	assert.Equal(t, SideHeads, side)

	side, err = ParseSide("tails")
	require.NoError(t, err)
	assert.Equal(t, SideTails, side)

	_, err = ParseSide("edge")
	assert.Error(t, err)
}
