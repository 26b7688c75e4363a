package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AuctionStatus replaces the source's zero-address sentinel with a typed
// enum, while ClipAuction/EnglishAuction
// still carry the raw wire fields (usr/guy) for ABI-compatible re-reads.
type AuctionStatus int

const (
	// StatusActive means the auction is still selling.
	StatusActive AuctionStatus = iota
	// StatusClosed means the auction has settled or been reset.
	StatusClosed
)

// ClipAuctionKey identifies a Dutch collateral auction.
type ClipAuctionKey struct {
	Ilk string
	ID *big.Int
}

// ClipAuction is a snapshot of one Clipper sale.
type ClipAuction struct {
	Key ClipAuctionKey
	Tab *big.Int // debt to recover, RAD
	Lot *big.Int // collateral on sale, WAD
	Top *big.Int // starting price, RAY
	Tic int64 // auction start time, unix seconds
	Pos *big.Int
	Usr common.Address // owner before liquidation
}

// Status derives AuctionStatus from tab.
func (a ClipAuction) Status() AuctionStatus {
	if a.Tab != nil && a.Tab.Sign() > 0 {
		return StatusActive
	}
	return StatusClosed
}

// EnglishAuctionKey identifies a Flap (surplus) or Flop (debt) auction.
type EnglishAuctionKey struct {
	ID *big.Int
}

// EnglishAuction is a snapshot of one Flap or Flop bid state.
// Flap: Bid is sKLC offered (WAD), Lot is stablecoin on sale (RAD).
// Flop: Bid is stablecoin paid (RAD), Lot is sKLC demanded (WAD).
type EnglishAuction struct {
	Key EnglishAuctionKey
	Bid *big.Int
	Lot *big.Int
	Guy common.Address // current high bidder; zero address means inactive
	Tic int64 // bid expiry, unix seconds
	End int64 // auction expiry, unix seconds
}

// Status derives AuctionStatus from the auction's end time alone: a zero End
// (the on-chain record has been deleted) or an End at or before now means
// closed. Guy is not consulted.
func (a EnglishAuction) Status(now int64) AuctionStatus {
	if a.End == 0 || now >= a.End {
		return StatusClosed
	}
	return StatusActive
}
