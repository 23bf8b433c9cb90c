package state

import (
	"encoding/binary"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	poolIDPrefix       = []byte("pool/id/")
	poolRewardPrefix   = []byte("pool/reward/")
	holderIDPrefix     = []byte("holder/id/")
	stakePrefix        = []byte("stake/")
	requestPrefix      = []byte("request/")
	poolAllocPrefix    = []byte("alloc/pool/")
	holderAllocPrefix  = []byte("alloc/holder/")
	poolLockPrefix     = []byte("lock/pool/")
	holderLockPrefix   = []byte("lock/holder/")
	poolNamePrefix     = []byte("pool/name/")
	poolOwnerPrefix    = []byte("pool/owner/")
	holderPairPrefix   = []byte("holder/pair/")
	holderRecentPrefix = []byte("holder/lru/")
)

func be64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func join(prefix []byte, parts ...[]byte) []byte {
	out := append([]byte(nil), prefix...)
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

func sequenceKey(name string) []byte {
	return []byte(fmt.Sprintf("seq/%s", name))
}

func poolIDKey(id uint64) []byte { return join(poolIDPrefix, be64(id)) }

func poolNameKey(name string) []byte { return join(poolNamePrefix, []byte(name)) }

func poolOwnerPrefixFor(owner string) []byte {
	return join(poolOwnerPrefix, []byte(owner), []byte("/"))
}

func poolOwnerKey(owner string, id uint64) []byte {
	return join(poolOwnerPrefixFor(owner), be64(id))
}

// rateKey orders rates ascending with eight fractional digits of resolution.
func rateKey(rate decimal.Decimal) []byte {
	scaled := rate.Shift(8).Floor()
	if scaled.Sign() <= 0 {
		return be64(0)
	}
	return be64(scaled.BigInt().Uint64())
}

func poolRewardKey(rate decimal.Decimal, id uint64) []byte {
	return join(poolRewardPrefix, rateKey(rate), be64(id))
}

func holderIDKey(id uint64) []byte { return join(holderIDPrefix, be64(id)) }

func holderPairKey(pool, holder string) []byte {
	return join(holderPairPrefix, []byte(pool), []byte("/"), []byte(holder))
}

func holderRecentPrefixFor(pool string) []byte {
	return join(holderRecentPrefix, []byte(pool), []byte("/"))
}

func holderRecentKey(pool string, lastUsed, id uint64) []byte {
	return join(holderRecentPrefixFor(pool), be64(lastUsed), be64(id))
}

func stakeKey(collateral string) []byte { return join(stakePrefix, []byte(collateral)) }

func requestKey(tid uint64) []byte { return join(requestPrefix, be64(tid)) }

func poolAllocPrefixFor(tid uint64) []byte { return join(poolAllocPrefix, be64(tid), []byte("/")) }

func poolAllocKey(tid, id uint64) []byte { return join(poolAllocPrefixFor(tid), be64(id)) }

func holderAllocPrefixFor(tid uint64) []byte {
	return join(holderAllocPrefix, be64(tid), []byte("/"))
}

func holderAllocKey(tid, id uint64) []byte { return join(holderAllocPrefixFor(tid), be64(id)) }

// Lock keys sort by unlock time so a sweep stops at the first entry still due
// in the future.
func poolLockKey(unlockAt, id uint64) []byte { return join(poolLockPrefix, be64(unlockAt), be64(id)) }

func holderLockKey(unlockAt, id uint64) []byte {
	return join(holderLockPrefix, be64(unlockAt), be64(id))
}

func trailingID(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
