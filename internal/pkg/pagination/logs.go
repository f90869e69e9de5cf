package pagination

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EmitterKey keys a log by the contract that emitted it.
func EmitterKey(l types.Log) (string, bool) {
	if l.Address == (common.Address{}) {
		return "", false
	}
	return l.Address.Hex(), true
}

// TopicAddressKey keys a log by the address packed into the last 20 bytes of
// topic slot. A negative slot counts from the end, -1 being the last topic.
func TopicAddressKey(slot int) func(types.Log) (string, bool) {
	return func(l types.Log) (string, bool) {
		idx := slot
		if idx < 0 {
			idx = len(l.Topics) + slot
		}
		if idx < 0 || idx >= len(l.Topics) {
			return "", false
		}
		addr := common.BytesToAddress(l.Topics[idx].Bytes()[12:])
		if addr == (common.Address{}) {
			return "", false
		}
		return addr.Hex(), true
	}
}

// BlockWindows turns a block range into a cursor-paginated source. Each page
// covers at most span blocks and the cursor is the next fromBlock in decimal.
// A zero span fetches the whole range in one page.
func BlockWindows[T any](from, to, span uint64, fetch func(ctx context.Context, from, to uint64) ([]T, error)) PageFunc[T] {
	return func(ctx context.Context, cursor string) (Page[T], error) {
		start := from
		if cursor != "" {
			v, err := strconv.ParseUint(cursor, 10, 64)
			if err != nil {
				return Page[T]{}, err
			}
			start = v
		}
		if start > to {
			return Page[T]{}, nil
		}

		end := to
		if span > 0 && to-start >= span {
			end = start + span - 1
		}
		items, err := fetch(ctx, start, end)
		if err != nil {
			return Page[T]{}, err
		}

		page := Page[T]{Items: items}
		if end < to {
			page.NextCursor = strconv.FormatUint(end+1, 10)
		}
		return page, nil
	}
}
