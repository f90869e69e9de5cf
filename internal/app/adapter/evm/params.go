package evm

import (
	"time"

	"chain_sync/internal/pkg/pagination"
	"chain_sync/internal/pkg/scheduler"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signatures used by discovery and holder replay.
var (
	ApprovalTopic             = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
	OwnershipTransferredTopic = crypto.Keccak256Hash([]byte("OwnershipTransferred(address,address)"))
	TransferTopic             = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

// KeyFunc extracts the candidate token address from a discovery log.
type KeyFunc func(types.Log) (string, bool)

// Params describes one EVM partner.
type Params struct {
	Partner       string
	Network       string
	ApplicationID int
	// Topics is the eth_getLogs topic filter used for discovery.
	Topics [][]common.Hash
	Key    KeyFunc
	// TopicCount, when positive, keeps only logs with exactly that many topics.
	TopicCount   int
	SymbolPrefix string
	ReadOwner    bool
	Holders      bool
	FromBlock    uint64
	// MergePartnerCandidates adds the addresses listed by the partner API to discovery.
	MergePartnerCandidates bool
	Scheduler              scheduler.Config
}

func padAddress(hex string) common.Hash {
	return common.BytesToHash(common.HexToAddress(hex).Bytes())
}

var defaultScheduler = scheduler.Config{
	MaxConcurrent:            5,
	MinTime:                  33 * time.Millisecond,
	Reservoir:                30,
	ReservoirRefreshAmount:   30,
	ReservoirRefreshInterval: time.Second,
}

// Presets returns the built-in EVM partners keyed by adapter name.
func Presets() map[string]Params {
	return map[string]Params{
		"realt": {
			Partner:       "realt",
			Network:       "gnosis",
			ApplicationID: 3,
			Topics:        [][]common.Hash{{ApprovalTopic}, {padAddress("0x5Fc96c182Bb7E0413c08e8e03e9d7EFc6cf0B099")}},
			Key:           pagination.EmitterKey,
			SymbolPrefix:  "REALTOKEN",
			ReadOwner:     true,
			Holders:       true,
			Scheduler:     scheduler.Config{MaxConcurrent: 20, MinTime: time.Millisecond},
		},
		"oceanpoint": {
			Partner:       "oceanpoint",
			Network:       "ethereum",
			ApplicationID: 4,
			Topics:        [][]common.Hash{{common.HexToHash("0x2c28e98235d90a5a66515fabbc6913ccdd057477d7d54a1e276f03cd3ed1921e")}},
			Key:           pagination.TopicAddressKey(-1),
			SymbolPrefix:  "BSPT",
			ReadOwner:     true,
			Holders:       true,
			Scheduler:     defaultScheduler,
		},
		"equito": {
			Partner:       "equito",
			Network:       "polygon",
			ApplicationID: 5,
			Topics: [][]common.Hash{
				{OwnershipTransferredTopic},
				{common.Hash{}},
				{padAddress("0x0635e2FB7C74f59fFe9dA28654Bc50Dfa468d600")},
			},
			Key:          pagination.EmitterKey,
			SymbolPrefix: "EQT",
			ReadOwner:    true,
			Scheduler:    defaultScheduler,
		},
		"reental": {
			Partner:                "reental",
			Network:                "polygon",
			ApplicationID:          6,
			Topics:                 [][]common.Hash{{common.HexToHash("0xed93bcc1017e3f19794bfdf2fe5184a39a268e8a4540c3da97fb484ca9e842bc")}},
			Key:                    pagination.TopicAddressKey(-1),
			TopicCount:             3,
			SymbolPrefix:           "Reental",
			Holders:                true,
			MergePartnerCandidates: true,
			Scheduler:              defaultScheduler,
		},
	}
}
