package mimc

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimalBytes(t *testing.T, s string) [Size]byte {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	var out [Size]byte
	v.FillBytes(out[:])
	return out
}

func TestCombineRegression(t *testing.T) {
	left := decimalBytes(t, "3703141493535563179657531719960160174296085208671919316200479060314459804651")
	right := decimalBytes(t, "15683951496311901749339509118960676303290224812129752890706581988986633412003")
	want := decimalBytes(t, "16797922449555994684063104214233396200599693715764605878168345782964540311877")

	assert.Equal(t, want, Combine(left, right))
	assert.Equal(t, want, Combine(left, right), "combine is not deterministic")
	assert.NotEqual(t, want, Combine(right, left))
}

func TestRoundConstants(t *testing.T) {
	cs := RoundConstants()
	require.Len(t, cs, Rounds)
	assert.Zero(t, cs[0].Sign())

	var first [Size]byte
	cs[1].FillBytes(first[:])
	assert.Equal(t, "0099411d3604a03837fdf35d6a7700ee3919c25d11b5f669c745635030dbfcb2", hex.EncodeToString(first[:]))

	var last [Size]byte
	cs[Rounds-1].FillBytes(last[:])
	assert.Equal(t, "0ee1c5868aefff8019a896f620720afce9b913dbf75030f2be871e82b83207cf", hex.EncodeToString(last[:]))
}

func TestHashElementsMatchesCompression(t *testing.T) {
	var iv, a, b fr.Element
	iv.SetUint64(1)
	a.SetUint64(2)
	b.SetUint64(3)

	step := MiyaguchiPreneel(&iv, &a)
	want := MiyaguchiPreneel(&step, &b)
	got := HashElements(iv, a, b)
	assert.True(t, want.Equal(&got))

	empty := HashElements(iv)
	assert.True(t, empty.Equal(&iv))
}

func TestDomainTag(t *testing.T) {
	tag := DomainTag("zeth.apk")
	b := tag.Bytes()
	assert.Equal(t, "1b0ef98846c8516ad6d2e1cc9162a81f06ad1c5456c7f353124addebd7363395", hex.EncodeToString(b[:]))

	other := DomainTag("zeth.cm")
	assert.False(t, tag.Equal(&other))
}
