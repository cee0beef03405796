// Command sign-order generates a keypair (or loads one from
// SIGN_ORDER_PRIVATE_KEY_HEX), builds a sample order, signs it, and
// prints the JSON body for POST /api/v1/orders.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mr-tron/base58"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/signing"
)

func main() {
	var (
		signer *signing.Signer
		err    error
	)
	if hexKey := os.Getenv("SIGN_ORDER_PRIVATE_KEY_HEX"); hexKey != "" {
		signer, err = signing.FromPrivateKeyHex(hexKey)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = signing.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Account: %s\n", signer.AccountIDBase58())
	fmt.Printf("Private Key (hex, KEEP SECRET!): %s\n\n", signer.PrivateKeyHex())

	var mkt [32]byte
	copy(mkt[:], []byte("sample-market-will-trump-2028.."))

	o := order.Order{
		Salt:        uint64(time.Now().UnixNano()),
		Maker:       signer.AccountID(),
		Signer:      signer.AccountID(),
		Taker:       order.DefaultTaker,
		Market:      mkt,
		TokenID:     order.TokenYes,
		MakerAmount: 1_000_000,
		TakerAmount: 500_000,
		Expiration:  time.Now().Add(time.Hour).Unix(),
		Nonce:       1,
		FeeRateBps:  50,
		Side:        order.SideBuy,
	}

	if err := order.Validate(o); err != nil {
		fmt.Printf("Error: sample order failed validation: %v\n", err)
		os.Exit(1)
	}

	hash := order.Hash(o)
	signature := signer.Sign(hash[:])

	fmt.Println("Order Details:")
	fmt.Printf("  Market: %s\n", order.AccountString(o.Market))
	fmt.Printf("  Side: %d  TokenID: %d\n", o.Side, o.TokenID)
	fmt.Printf("  MakerAmount: %d  TakerAmount: %d\n", o.MakerAmount, o.TakerAmount)
	fmt.Printf("  Price: %d (scaled by %d)\n\n", order.Price(o), order.PriceScale)

	if err := order.Verify(o, signature); err != nil {
		fmt.Printf("Error: self-verification failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signature verified locally.")
	fmt.Printf("Order hash: %s\n\n", order.FingerprintString(hash))

	body := map[string]interface{}{
		"order": map[string]interface{}{
			"salt":        fmt.Sprintf("%d", o.Salt),
			"maker":       order.AccountString(o.Maker),
			"signer":      order.AccountString(o.Signer),
			"taker":       "",
			"market":      order.AccountString(o.Market),
			"tokenId":     o.TokenID,
			"makerAmount": fmt.Sprintf("%d", o.MakerAmount),
			"takerAmount": fmt.Sprintf("%d", o.TakerAmount),
			"expiration":  fmt.Sprintf("%d", o.Expiration),
			"nonce":       fmt.Sprintf("%d", o.Nonce),
			"feeRateBps":  o.FeeRateBps,
			"side":        o.Side,
		},
		"signature": base58.Encode(signature),
	}

	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("POST /api/v1/orders")
	fmt.Println(string(out))
}
