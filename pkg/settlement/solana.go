package settlement

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/matching"
)

// settleMatchDiscriminator is the 8-byte anchor-style instruction tag
// for the settlement program's batch-fill entrypoint, derived the same
// way the keeper reference derives cancel_order_by_executor.
var settleMatchDiscriminator = anchorInstructionDiscriminator("settle_match")

func anchorInstructionDiscriminator(name string) [8]byte {
	h := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], h[:8])
	return out
}

// encodeSettleMatchData packs the job into the instruction's
// little-endian data payload: discriminator, taker hash, taker fill
// amount, leg count, then (maker hash, fill amount) per leg —
// mirroring the canonical order codec's fixed little-endian layout.
func encodeSettleMatchData(job matching.Job) []byte {
	var buf bytes.Buffer
	buf.Write(settleMatchDiscriminator[:])
	buf.Write(job.TakerOrderHash[:])
	binary.Write(&buf, binary.LittleEndian, job.TakerFillAmount)
	binary.Write(&buf, binary.LittleEndian, uint8(len(job.MakerOrderHashes)))
	for i, h := range job.MakerOrderHashes {
		buf.Write(h[:])
		binary.Write(&buf, binary.LittleEndian, job.MakerFillAmounts[i])
	}
	return buf.Bytes()
}

// Submitter sends one settlement job on-chain and returns the
// transaction signature once confirmed.
type Submitter interface {
	Submit(ctx context.Context, job matching.Job, accounts []solana.PublicKey) (string, error)
}

// SolanaConfig configures the on-chain submission path.
type SolanaConfig struct {
	ProgramID                    solana.PublicKey
	OperatorKey                  solana.PrivateKey
	Commitment                   rpc.CommitmentType
	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64
	SkipPreflight                bool
	ConfirmPollInterval          time.Duration
}

// SolanaSubmitter submits batched settlement transactions via
// solana-go, grounded on the keeper reference's
// sendTransaction/waitForConfirmation pair: build optional
// compute-budget instructions, sign, send, then poll
// getSignatureStatuses until confirmed or the context times out.
type SolanaSubmitter struct {
	rpc *rpc.Client
	cfg SolanaConfig
}

// NewSolanaSubmitter wraps an RPC client configured for cfg.
func NewSolanaSubmitter(rpcClient *rpc.Client, cfg SolanaConfig) *SolanaSubmitter {
	if cfg.ConfirmPollInterval == 0 {
		cfg.ConfirmPollInterval = 700 * time.Millisecond
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	return &SolanaSubmitter{rpc: rpcClient, cfg: cfg}
}

// Submit builds, signs, and submits the settle_match instruction for
// job against accounts (market/vault/maker-and-taker-owner accounts
// the on-chain program needs, supplied by the caller in program order).
func (s *SolanaSubmitter) Submit(ctx context.Context, job matching.Job, accounts []solana.PublicKey) (string, error) {
	metas := make(solana.AccountMetaSlice, 0, len(accounts)+1)
	metas = append(metas, solana.NewAccountMeta(s.cfg.OperatorKey.PublicKey(), false, true))
	for _, a := range accounts {
		metas = append(metas, solana.NewAccountMeta(a, true, false))
	}
	ix := solana.NewInstruction(s.cfg.ProgramID, metas, encodeSettleMatchData(job))

	instructions := make([]solana.Instruction, 0, 3)
	if s.cfg.ComputeUnitLimit > 0 {
		cuLimitIx, err := computebudget.NewSetComputeUnitLimitInstruction(s.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return "", fmt.Errorf("settlement: compute unit limit instruction: %w", err)
		}
		instructions = append(instructions, cuLimitIx)
	}
	if s.cfg.ComputeUnitPriceMicroLamports > 0 {
		cuPriceIx, err := computebudget.NewSetComputeUnitPriceInstruction(s.cfg.ComputeUnitPriceMicroLamports).ValidateAndBuild()
		if err != nil {
			return "", fmt.Errorf("settlement: compute unit price instruction: %w", err)
		}
		instructions = append(instructions, cuPriceIx)
	}
	instructions = append(instructions, ix)

	recent, err := s.rpc.GetLatestBlockhash(ctx, s.cfg.Commitment)
	if err != nil {
		return "", fmt.Errorf("settlement: get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(s.cfg.OperatorKey.PublicKey()))
	if err != nil {
		return "", fmt.Errorf("settlement: build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.cfg.OperatorKey.PublicKey().Equals(key) {
			return &s.cfg.OperatorKey
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("settlement: sign transaction: %w", err)
	}

	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       s.cfg.SkipPreflight,
		PreflightCommitment: s.cfg.Commitment,
	})
	if err != nil {
		return "", fmt.Errorf("settlement: send transaction: %w", err)
	}

	if err := s.waitForConfirmation(ctx, sig); err != nil {
		return "", fmt.Errorf("settlement: confirm %s: %w", sig, err)
	}
	return sig.String(), nil
}

func (s *SolanaSubmitter) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(s.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := s.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue
			}
			if len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction failed: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}
