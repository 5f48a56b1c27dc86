package registry

import (
	"encoding/binary"
	"fmt"
)

var (
	loanSeqKey        = []byte("registry/loan/seq")
	loanPrefix        = []byte("registry/loan/")
	loanIndexPrefix   = []byte("registry/loans/")
	collateralPrefix  = []byte("registry/collateral/")
	assetIndexPrefix  = []byte("registry/assets/")
	stakePrefix       = []byte("registry/stake/")
	kycPrefix         = []byte("registry/kyc/")
	govPrefix         = []byte("registry/gov/")
	crossChainPrefix  = []byte("registry/xchain/")
	chainIndexPrefix  = []byte("registry/chains/")
	firstSeenPrefix   = []byte("registry/firstseen/")
	identityPrefix    = []byte("registry/identity/")
	walletIndexPrefix = []byte("registry/wallet/")
	usedHashPrefix    = []byte("registry/usedhash/")
)

func loanKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", loanPrefix, id))
}

func loanIndexKey(subject [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", loanIndexPrefix, subject))
}

func collateralKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", collateralPrefix, id))
}

func assetIndexKey(subject [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", assetIndexPrefix, subject))
}

func stakeKey(subject [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", stakePrefix, subject))
}

func kycKey(subject [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", kycPrefix, subject))
}

func govKey(subject [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", govPrefix, subject))
}

func crossChainKey(subject [20]byte, chainSelector uint64) []byte {
	return []byte(fmt.Sprintf("%s%x/%d", crossChainPrefix, subject, chainSelector))
}

func chainIndexKey(subject [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", chainIndexPrefix, subject))
}

func firstSeenKey(subject [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", firstSeenPrefix, subject))
}

func identityKey(hash [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", identityPrefix, hash))
}

func walletIndexKey(wallet [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", walletIndexPrefix, wallet))
}

func usedHashKey(hash [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", usedHashPrefix, hash))
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
