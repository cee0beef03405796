package realtime

import "strings"

const (
	marketPrefix = "market:"
	userPrefix   = "user:"
)

// MarketChannel names the public channel for a market.
func MarketChannel(marketID string) string { return marketPrefix + marketID }

// UserChannel names the private channel for a wallet.
func UserChannel(wallet string) string { return userPrefix + wallet }

// isPrivateChannel reports whether channel requires wallet-ownership
// proof to subscribe.
func isPrivateChannel(channel string) bool {
	return strings.HasPrefix(channel, userPrefix)
}

// walletOf extracts the wallet bound to a user:<wallet> channel name;
// ok is false for anything else.
func walletOf(channel string) (wallet string, ok bool) {
	if !isPrivateChannel(channel) {
		return "", false
	}
	return strings.TrimPrefix(channel, userPrefix), true
}
