package arbvault

import (
	"encoding/binary"

	"amplifier/core/types"
)

var (
	configKey     = []byte("arb/config")
	feeConfigKey  = []byte("arb/fees")
	ownerKey      = []byte("arb/owner")
	whitelistKey  = []byte("arb/whitelist")
	checkpointKey = []byte("arb/checkpoint")
	lockedKey     = []byte("arb/locked")
	unbondSeqKey  = []byte("arb/unbond/seq")

	unbondPrefix    = []byte("arb/unbond/entry/")
	unbondIdxPrefix = []byte("arb/unbond/user/")
	ratePrefix      = []byte("arb/rate/")
	rateIndexKey    = []byte("arb/rate/index")
)

func unbondKey(user types.Address, id uint64) []byte {
	buf := make([]byte, len(unbondPrefix)+len(user)+8)
	copy(buf, unbondPrefix)
	copy(buf[len(unbondPrefix):], user[:])
	binary.BigEndian.PutUint64(buf[len(unbondPrefix)+len(user):], id)
	return buf
}

func unbondIndexKey(user types.Address) []byte {
	buf := make([]byte, len(unbondIdxPrefix)+len(user))
	copy(buf, unbondIdxPrefix)
	copy(buf[len(unbondIdxPrefix):], user[:])
	return buf
}

func rateKey(day string) []byte {
	buf := make([]byte, len(ratePrefix)+len(day))
	copy(buf, ratePrefix)
	copy(buf[len(ratePrefix):], day)
	return buf
}

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeID(raw []byte) uint64 {
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}
