// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package genes implements the Kai stat-gene codec and the derived pure
// scores (trait score, combat power). The heavier gene arithmetic
// (mutation trees, visual genes) stays behind the Decoder interface and
// is supplied by the embedding application.
package genes

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// KaiAlphabet is the 32-character base used by the stat-gene encoding.
const KaiAlphabet = "123456789abcdefghijkmnopqrstuvwx"

// KaiStringLen is the fixed width of an encoded stat-gene string:
// SlotCount slots by DepthCount inheritance levels.
const KaiStringLen = SlotCount * DepthCount

const (
	SlotCount  = 12
	DepthCount = 4 // dominant + R1 + R2 + R3
)

// SlotNames lists the gene slots in kai order. The order is fixed by the
// on-chain encoding and doubles as the column naming order in indexdb.
var SlotNames = [SlotCount]string{
	"class",
	"subClass",
	"profession",
	"passive1",
	"passive2",
	"active1",
	"active2",
	"statBoost1",
	"statBoost2",
	"statsUnknown1",
	"element",
	"statsUnknown2",
}

// Slot indexes into SlotNames for the slots callers address directly.
const (
	SlotClass      = 0
	SlotSubClass   = 1
	SlotProfession = 2
	SlotPassive1   = 3
	SlotPassive2   = 4
	SlotActive1    = 5
	SlotActive2    = 6
)

var kaiIndexes = func() map[byte]uint8 {
	m := make(map[byte]uint8, len(KaiAlphabet))
	for i := 0; i < len(KaiAlphabet); i++ {
		m[KaiAlphabet[i]] = uint8(i)
	}
	return m
}()

// KaiIndex returns the raw gene value of a kai character.
func KaiIndex(ch byte) (uint8, bool) {
	v, ok := kaiIndexes[ch]
	return v, ok
}

// Expanded is a fully decoded stat-gene set: per slot, the dominant value
// followed by the three recessives (R1 shallowest).
type Expanded struct {
	Slots [SlotCount][DepthCount]uint8
}

// Dominant returns the expressed gene of a slot.
func (e *Expanded) Dominant(slot int) uint8 { return e.Slots[slot][0] }

// Recessive returns the n-th recessive (1..3) of a slot.
func (e *Expanded) Recessive(slot, n int) uint8 { return e.Slots[slot][n] }

// ToKai encodes the gene set back to its 48-character kai string. Within
// each slot group the dominant is written last, matching the on-chain
// layout where the expressed gene occupies the least significant digit.
func (e *Expanded) ToKai() string {
	var b strings.Builder
	b.Grow(KaiStringLen)
	for s := 0; s < SlotCount; s++ {
		for d := DepthCount - 1; d >= 0; d-- {
			b.WriteByte(KaiAlphabet[e.Slots[s][d]])
		}
	}
	return b.String()
}

// KaiString converts the stat-gene integer to its kai representation,
// left padded with the zero digit to the fixed 48-character width.
func KaiString(statGenes *big.Int) (string, error) {
	if statGenes.Sign() < 0 {
		return "", errors.New("negative statGenes")
	}
	base := big.NewInt(int64(len(KaiAlphabet)))
	digits := make([]byte, 0, KaiStringLen)
	n := new(big.Int).Set(statGenes)
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		digits = append(digits, KaiAlphabet[mod.Int64()])
	}
	if len(digits) > KaiStringLen {
		return "", errors.Errorf("statGenes overflows %d kai digits", KaiStringLen)
	}
	for len(digits) < KaiStringLen {
		digits = append(digits, KaiAlphabet[0])
	}
	// digits are little endian; flip to the conventional big endian string
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits), nil
}

// KaiToInt is the inverse of KaiString.
func KaiToInt(kai string) (*big.Int, error) {
	base := big.NewInt(int64(len(KaiAlphabet)))
	n := new(big.Int)
	for i := 0; i < len(kai); i++ {
		v, ok := KaiIndex(kai[i])
		if !ok {
			return nil, errors.Errorf("invalid kai character %q at %d", kai[i], i)
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(v)))
	}
	return n, nil
}

// DecodeStatGenes expands a stat-gene integer into its 12 slots by 4
// inheritance levels.
func DecodeStatGenes(statGenes *big.Int) (*Expanded, error) {
	kai, err := KaiString(statGenes)
	if err != nil {
		return nil, err
	}
	return DecodeKai(kai)
}

// DecodeKai expands a 48-character kai string. Slot groups run in
// SlotNames order; within a group the dominant is the last character.
func DecodeKai(kai string) (*Expanded, error) {
	if len(kai) != KaiStringLen {
		return nil, errors.Errorf("kai string must be %d characters, got %d", KaiStringLen, len(kai))
	}
	var e Expanded
	for s := 0; s < SlotCount; s++ {
		group := kai[s*DepthCount : (s+1)*DepthCount]
		for d := 0; d < DepthCount; d++ {
			v, ok := KaiIndex(group[DepthCount-1-d])
			if !ok {
				return nil, errors.Errorf("invalid kai character %q", group[DepthCount-1-d])
			}
			e.Slots[s][d] = v
		}
	}
	return &e, nil
}

// ParseStatGenes accepts the decimal string shape the GraphQL API returns.
func ParseStatGenes(s string) (*Expanded, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("statGenes %q is not a decimal integer", s)
	}
	return DecodeStatGenes(n)
}

// Decoder is the delegated gene-arithmetic collaborator. The default
// implementation covers only the stat-gene expansion this repo needs.
type Decoder interface {
	DecodeStatGenes(statGenes string) (*Expanded, error)
}

// KaiDecoder is the built-in Decoder.
type KaiDecoder struct{}

func (KaiDecoder) DecodeStatGenes(statGenes string) (*Expanded, error) {
	return ParseStatGenes(statGenes)
}
