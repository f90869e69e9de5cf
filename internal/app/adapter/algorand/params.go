package algorand

import (
	"time"

	"chain_sync/internal/pkg/scheduler"
)

const (
	LoftyCreator    = "LOFTYRITC3QUX6TVQBGT3BARKWAZDEB2TTJWYQMH6YITKNH7IOMWRLC7SA"
	DefaultIndexer  = "https://mainnet-idx.4160.nodely.dev"
	defaultPageSize = 1000
)

// Params describes one Algorand partner.
type Params struct {
	Partner       string
	Network       string
	ApplicationID int
	// Creator is the account that mints the partner's assets.
	Creator        string
	ExcludedAssets []uint64
	// TransactionLookback bounds how far back asset transactions are scanned.
	TransactionLookback time.Duration
	PageLimit           int
	Scheduler           scheduler.Config
}

// Lofty returns the Lofty partner parameters.
func Lofty() Params {
	return Params{
		Partner:             "lofty",
		Network:             "algorand",
		ApplicationID:       1,
		Creator:             LoftyCreator,
		ExcludedAssets:      []uint64{237267329},
		TransactionLookback: 2 * 365 * 24 * time.Hour,
		PageLimit:           defaultPageSize,
		Scheduler:           scheduler.Config{MaxConcurrent: 20, MinTime: 10 * time.Millisecond},
	}
}
