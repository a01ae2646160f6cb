// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package hash provides content hashes used as deduplication keys.
package hash

import (
	"crypto/sha1"
	"encoding/hex"
)

type Sig [sha1.Size]byte

// Hash hashes the concatenation of pieces.
// Pieces are separated by a zero byte, so ("ab", "c") and ("a", "bc") differ.
func Hash(pieces ...[]byte) Sig {
	h := sha1.New()
	for i, data := range pieces {
		if i != 0 {
			h.Write([]byte{0})
		}
		h.Write(data)
	}
	var sig Sig
	copy(sig[:], h.Sum(nil))
	return sig
}

func String(pieces ...[]byte) string {
	sig := Hash(pieces...)
	return sig.String()
}

func (sig Sig) String() string {
	return hex.EncodeToString(sig[:])
}
