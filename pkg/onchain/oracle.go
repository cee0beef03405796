// Package onchain is the read-only order-status oracle (C7): it
// decodes the order-status and maker-nonce accounts a deployed
// settlement program maintains, sharing the RPC client pattern the
// keeper reference file uses for loadRuntimeAccounts
// (GetAccountInfoWithOpts against a derived PDA, fixed little-endian
// account layouts).
package onchain

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// orderStatusLen is the fixed account size spec.md §4.7 names:
// discriminator(8) + hash(32) + flag(1) + remaining(8, LE) + bump(1).
const orderStatusLen = 8 + 32 + 1 + 8 + 1

// nonceAccountLen is the fixed size of a maker's nonce account:
// discriminator(8) + nonce(8, LE).
const nonceAccountLen = 8 + 8

// Status is the decoded contents of an order-status account.
type Status struct {
	IsFilledOrCancelled bool
	Remaining           uint64
}

// Oracle resolves order status and maker nonces against on-chain
// accounts derived from the settlement program's PDA scheme.
type Oracle struct {
	rpc        *rpc.Client
	programID  solana.PublicKey
	commitment rpc.CommitmentType
}

// New wraps an RPC client already configured for the target cluster.
func New(rpcClient *rpc.Client, programID solana.PublicKey, commitment rpc.CommitmentType) *Oracle {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Oracle{rpc: rpcClient, programID: programID, commitment: commitment}
}

// deriveOrderStatusPDA finds the order-status account for orderHash.
func (o *Oracle) deriveOrderStatusPDA(orderHash [32]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("order"), orderHash[:]}, o.programID)
}

// deriveNoncePDA finds a maker's nonce account.
func (o *Oracle) deriveNoncePDA(maker [32]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("nonce"), maker[:]}, o.programID)
}

// NonceOf fetches a maker's current nonce; an absent account reports
// zero, matching a maker who has never submitted an order.
func (o *Oracle) NonceOf(ctx context.Context, maker [32]byte) (uint64, error) {
	key, _, err := o.deriveNoncePDA(maker)
	if err != nil {
		return 0, fmt.Errorf("onchain: derive nonce PDA: %w", err)
	}

	resp, err := o.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{Commitment: o.commitment})
	if err != nil {
		if isAccountNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("onchain: fetch nonce account %s: %w", key, err)
	}
	if resp == nil || resp.Value == nil {
		return 0, nil
	}

	return decodeNonce(resp.Value.Data.GetBinary())
}

func decodeNonce(data []byte) (uint64, error) {
	if len(data) < nonceAccountLen {
		return 0, fmt.Errorf("onchain: nonce account too short (%d bytes)", len(data))
	}
	return binary.LittleEndian.Uint64(data[8:16]), nil
}

// StatusOf decodes the order-status account for orderHash. A nil
// return (with no error) means the account doesn't exist yet — the
// order hasn't been settled or cancelled on-chain.
func (o *Oracle) StatusOf(ctx context.Context, orderHash [32]byte) (*Status, error) {
	key, _, err := o.deriveOrderStatusPDA(orderHash)
	if err != nil {
		return nil, fmt.Errorf("onchain: derive order status PDA: %w", err)
	}

	resp, err := o.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{Commitment: o.commitment})
	if err != nil {
		if isAccountNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("onchain: fetch order status account %s: %w", key, err)
	}
	if resp == nil || resp.Value == nil {
		return nil, nil
	}

	status, err := decodeOrderStatus(resp.Value.Data.GetBinary(), orderHash)
	if err != nil {
		return nil, fmt.Errorf("onchain: order status account %s: %w", key, err)
	}
	return status, nil
}

// decodeOrderStatus decodes the fixed discriminator(8)+hash(32)+flag(1)
// +remaining(8,LE)+bump(1) layout spec.md §4.7 names.
func decodeOrderStatus(data []byte, expectedHash [32]byte) (*Status, error) {
	if len(data) < orderStatusLen {
		return nil, fmt.Errorf("account too short (%d bytes)", len(data))
	}

	var storedHash [32]byte
	copy(storedHash[:], data[8:40])
	if storedHash != expectedHash {
		return nil, fmt.Errorf("hash mismatch")
	}

	flag := data[40]
	remaining := binary.LittleEndian.Uint64(data[41:49])

	return &Status{
		IsFilledOrCancelled: flag != 0,
		Remaining:           remaining,
	}, nil
}

// isAccountNotFound matches the RPC client's not-found error text, the
// same check the keeper reference's loadRuntimeAccounts performs since
// solana-go doesn't expose a typed sentinel for it.
func isAccountNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}
