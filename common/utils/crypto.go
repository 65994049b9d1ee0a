package utils

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the Keccak256 hash of the input data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// MethodSelector returns the 4-byte call selector for a canonical method
// signature, e.g. "auctions(uint256)".
func MethodSelector(sig string) []byte {
	return Keccak256([]byte(sig))[:4]
}

// EventTopic returns the hex topic hash for a canonical event signature,
// e.g. "BidPlaced(uint256,address,uint256,uint256)".
func EventTopic(sig string) string {
	return hexutil.Encode(Keccak256([]byte(sig)))
}
