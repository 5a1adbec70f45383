// Package bloomfilter
// BSD 3-Clause License
//
// Copyright (c) 2024, Alex Gaetano Padula
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
//  1. Redistributions of source code must retain the above copyright notice, this
//     list of conditions and the following disclaimer.
//
//  2. Redistributions in binary form must reproduce the above copyright notice,
//     this list of conditions and the following disclaimer in the documentation
//     and/or other materials provided with the distribution.
//
//  3. Neither the name of the copyright holder nor the names of its
//     contributors may be used to endorse or promote products derived from
//     this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

// Package bloomfilter implements a fixed-bit-size bloom filter gating
// SSTable reads. Unlike a resizing filter, the bit array never grows
// once created: callers size it up front from the expected number of
// keys a flush or compaction pass will write.
package bloomfilter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"

	"github.com/mjpearson/ridgedb/murmur"
)

const maxBits = 1 << 24 // sanity bound for deserialized bit array size

// BloomFilter is a fixed-bit-size probabilistic set.
type BloomFilter struct {
	bits    []byte // packed bit array, 8 bits per byte
	numBits uint32
	numHash uint32
}

// New creates a BloomFilter sized for expectedKeys entries at the given
// false-positive probability. The bit array size is fixed at creation
// time and never grows.
func New(expectedKeys int, falsePositiveRate float64) *BloomFilter {
	if expectedKeys < 1 {
		expectedKeys = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	numBits := optimalBits(expectedKeys, falsePositiveRate)
	numHash := optimalHashes(numBits, expectedKeys)

	return &BloomFilter{
		bits:    make([]byte, (numBits+7)/8),
		numBits: numBits,
		numHash: numHash,
	}
}

// NewWithBits creates a BloomFilter with an explicit fixed bit count and
// hash function count, bypassing the sizing heuristic.
func NewWithBits(numBits, numHash uint32) *BloomFilter {
	if numBits == 0 {
		numBits = 1
	}
	if numHash == 0 {
		numHash = 1
	}
	return &BloomFilter{
		bits:    make([]byte, (numBits+7)/8),
		numBits: numBits,
		numHash: numHash,
	}
}

func optimalBits(n int, p float64) uint32 {
	m := math.Ceil(-1 * float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	if m < 8 {
		m = 8
	}
	return uint32(m)
}

func optimalHashes(m uint32, n int) uint32 {
	k := math.Round(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	return uint32(k)
}

// Add adds a key to the filter.
func (bf *BloomFilter) Add(key []byte) {
	for i := uint32(0); i < bf.numHash; i++ {
		pos := bf.hash(key, i)
		bf.bits[pos/8] |= 1 << (pos % 8)
	}
}

// Check reports whether key may be present in the filter. A false
// result is certain proof of absence; a true result may be a false
// positive.
func (bf *BloomFilter) Check(key []byte) bool {
	for i := uint32(0); i < bf.numHash; i++ {
		pos := bf.hash(key, i)
		if bf.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

func (bf *BloomFilter) hash(key []byte, i uint32) uint32 {
	// two independent seeds combined per standard double-hashing
	h1 := murmur.Hash32(key, 0)
	h2 := murmur.Hash32(key, 1)
	return (h1 + i*h2) % bf.numBits
}

// Serialize encodes the filter into a length-prefixed binary buffer.
func (bf *BloomFilter) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, bf.numBits); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, bf.numHash); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(bf.bits))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(bf.bits); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Deserialize decodes a filter previously produced by Serialize.
func Deserialize(data []byte) (*BloomFilter, error) {
	buf := bytes.NewReader(data)
	bf := &BloomFilter{}

	if err := binary.Read(buf, binary.LittleEndian, &bf.numBits); err != nil {
		return nil, err
	}
	if err := binary.Read(buf, binary.LittleEndian, &bf.numHash); err != nil {
		return nil, err
	}
	if bf.numBits == 0 || bf.numBits > maxBits {
		return nil, errors.New("bloomfilter: invalid bit count")
	}

	var byteLen uint32
	if err := binary.Read(buf, binary.LittleEndian, &byteLen); err != nil {
		return nil, err
	}
	if byteLen == 0 || byteLen > maxBits/8 {
		return nil, errors.New("bloomfilter: invalid byte length")
	}

	bf.bits = make([]byte, byteLen)
	if _, err := buf.Read(bf.bits); err != nil {
		return nil, err
	}

	return bf, nil
}

// Empty reports whether no keys have been added to the filter. A flush
// aborts rather than write an empty filter page.
func (bf *BloomFilter) Empty() bool {
	for _, b := range bf.bits {
		if b != 0 {
			return false
		}
	}
	return true
}
