package engine

import (
	"github.com/starford/synapse/internal/checksum"
	"github.com/starford/synapse/internal/models"
)

// piece is one freshly chunked text with its identity.
type piece struct {
	text  string
	hash  string
	index int
}

// hashPieces hashes chunk texts, dropping repeated hashes (first one wins)
// so a note's chunk identities form a set.
func hashPieces(texts []string) (pieces []piece, bytesHashed int) {
	seen := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		bytesHashed += len(t)
		h := checksum.String(t)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		pieces = append(pieces, piece{text: t, hash: h, index: len(pieces)})
	}
	return pieces, bytesHashed
}

// diff splits the work between two chunk generations: fresh pieces whose hash
// is not persisted, and persisted chunks whose hash is gone.
func diff(existing []models.Chunk, fresh []piece) (toInsert []piece, toDelete []models.Chunk) {
	current := checksum.Set(pieceHashes(fresh))
	persisted := checksum.Set(chunkHashes(existing))
	for _, c := range existing {
		if _, ok := current[c.ContentHash]; !ok {
			toDelete = append(toDelete, c)
		}
	}
	for _, p := range fresh {
		if _, ok := persisted[p.hash]; !ok {
			toInsert = append(toInsert, p)
		}
	}
	return toInsert, toDelete
}

func pieceTexts(ps []piece) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.text
	}
	return out
}

func pieceHashes(ps []piece) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.hash
	}
	return out
}

func chunkHashes(cs []models.Chunk) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ContentHash
	}
	return out
}

func chunkTexts(cs []models.Chunk) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Content
	}
	return out
}
