package settlement

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/matching"
)

// wireJob is the JSON-on-the-wire shape of a matching.Job: fixed-size
// byte arrays don't round-trip cleanly through encoding/json, so
// fingerprints travel as hex strings.
type wireJob struct {
	TakerOrderHash   string   `json:"takerOrderHash"`
	TakerFillAmount  uint64   `json:"takerFillAmount"`
	MakerOrderHashes []string `json:"makerOrderHashes"`
	MakerFillAmounts []uint64 `json:"makerFillAmounts"`
}

// EncodeJob serializes a matching.Job for Queue.Push.
func EncodeJob(j matching.Job) ([]byte, error) {
	w := wireJob{
		TakerOrderHash:  hex.EncodeToString(j.TakerOrderHash[:]),
		TakerFillAmount: j.TakerFillAmount,
		MakerFillAmounts: j.MakerFillAmounts,
	}
	for _, h := range j.MakerOrderHashes {
		w.MakerOrderHashes = append(w.MakerOrderHashes, hex.EncodeToString(h[:]))
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("settlement: encode job: %w", err)
	}
	return b, nil
}

// DecodeJob reverses EncodeJob.
func DecodeJob(b []byte) (matching.Job, error) {
	var w wireJob
	if err := json.Unmarshal(b, &w); err != nil {
		return matching.Job{}, fmt.Errorf("settlement: decode job: %w", err)
	}

	var j matching.Job
	takerHash, err := decodeHash32(w.TakerOrderHash)
	if err != nil {
		return matching.Job{}, fmt.Errorf("settlement: decode taker hash: %w", err)
	}
	j.TakerOrderHash = takerHash
	j.TakerFillAmount = w.TakerFillAmount
	j.MakerFillAmounts = w.MakerFillAmounts

	for _, s := range w.MakerOrderHashes {
		h, err := decodeHash32(s)
		if err != nil {
			return matching.Job{}, fmt.Errorf("settlement: decode maker hash: %w", err)
		}
		j.MakerOrderHashes = append(j.MakerOrderHashes, h)
	}
	return j, nil
}

func decodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
