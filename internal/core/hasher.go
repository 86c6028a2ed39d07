package core

import (
	"VaultLedger/internal/event"
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "VaultLedger:genesis:v1"

// GenesisHash is the PrevHash of the first event in the log.
var GenesisHash = sha256.Sum256([]byte(GenesisHashSeed))

// ChainHash calculates hash[N] = SHA-256(prev_hash || sequence || event_type || payload)
func ChainHash(prevHash [32]byte, sequence int64, eventType event.EventType, payload []byte) [32]byte {
	hasher := sha256.New()

	// prev_hash (32 bytes)
	hasher.Write(prevHash[:])

	// sequence (8 bytes LE)
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	// event type (4 bytes LE)
	var typeBuf [4]byte
	binary.LittleEndian.PutUint32(typeBuf[:], uint32(eventType))
	hasher.Write(typeBuf[:])

	hasher.Write(payload)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// VerifyChain walks envelopes in sequence order starting after prev and
// returns the sequence of the first envelope that does not link, or 0.
func VerifyChain(prev [32]byte, prevSequence int64, envelopes []*event.EventEnvelope) (brokenAt int64) {
	for _, env := range envelopes {
		if env.Sequence != prevSequence+1 || env.PrevHash != prev {
			return env.Sequence
		}
		if ChainHash(prev, env.Sequence, env.EventType, env.Payload) != env.StateHash {
			return env.Sequence
		}
		prev = env.StateHash
		prevSequence = env.Sequence
	}
	return 0
}
