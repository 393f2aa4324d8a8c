package allocator

import "hash/fnv"

// Point maps an (experiment, participant) pair to a uniformly distributed
// value in [0, 1).
func Point(experimentID, participantID string) float64 {
	h := fnv.New64a()
	h.Write([]byte(experimentID))
	h.Write([]byte{':'})
	h.Write([]byte(participantID))
	// top 53 bits of the mixed hash
	return float64(fmix64(h.Sum64())>>11) / (1 << 53)
}

func fmix64(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}
