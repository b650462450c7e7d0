package cuckoo

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/detailyang/fastrand-go"
)

type fingerprint uint8

const (
	nullFp              = 0
	bucketSize          = 4
	fingerprintSizeBits = 8
	maxFingerprint      = (1 << fingerprintSizeBits) - 1
)

type bucket [bucketSize]fingerprint

// insert places fp into the first free slot. Returns false when the bucket
// is full. Duplicate fingerprints are allowed; the filter is a multiset.
func (b *bucket) insert(fp fingerprint) bool {
	for i, e := range b {
		if e == nullFp {
			b[i] = fp
			return true
		}
	}
	return false
}

// delete removes one occurrence of fp from the bucket.
func (b *bucket) delete(fp fingerprint) bool {
	for i, e := range b {
		if e == fp {
			b[i] = nullFp
			return true
		}
	}
	return false
}

func (b *bucket) contains(fp fingerprint) bool {
	for _, e := range b {
		if e == fp {
			return true
		}
	}
	return false
}

// randi returns either i1 or i2 randomly.
func randi(i1, i2 uint64) uint64 {
	if fastrand.FastRand()&1 == 0 {
		return i1
	}
	return i2
}

// indexAndFingerprint hashes the key and splits the digest: low bits pick
// the primary bucket, top bits form the fingerprint. Valid fingerprints are
// in [1, maxFingerprint-1], leaving 0 as the empty-slot state.
func indexAndFingerprint(key uint64, modulo uint64) (uint64, fingerprint) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	h := xxhash.Sum64(buf[:])

	i1 := h & modulo
	fp := fingerprint(h >> (64 - fingerprintSizeBits))
	fp = fp%(maxFingerprint-1) + 1
	return i1, fp
}

// altIndex derives the other candidate bucket by XORing the index with a
// hash of the fingerprint alone, which makes it an involution.
func altIndex(fp fingerprint, i uint64, modulo uint64) uint64 {
	b := [1]byte{byte(fp)}
	return (i ^ xxhash.Sum64(b[:])) & modulo
}
