package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CanonicalAddress is the lower-case hex form used as the KV key and in
// PriceTick fields.
func CanonicalAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func strict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// DecodePairCreatedEvent parses a queued pair-created payload. Unknown or
// missing required fields are decode errors; only block metadata may be
// zero (a log not yet included in a block).
func DecodePairCreatedEvent(data []byte) (PairCreatedEvent, error) {
	var ev PairCreatedEvent
	if err := strict(data, &ev); err != nil {
		return PairCreatedEvent{}, fmt.Errorf("decode pair-created event: %w", err)
	}
	if ev.Pair == (common.Address{}) {
		return PairCreatedEvent{}, fmt.Errorf("decode pair-created event: missing pair address")
	}
	if ev.Token0 == (common.Address{}) || ev.Token1 == (common.Address{}) {
		return PairCreatedEvent{}, fmt.Errorf("decode pair-created event: missing token address")
	}
	return ev, nil
}

// DecodeSyncEvent parses a queued sync payload with the same strictness.
func DecodeSyncEvent(data []byte) (SyncEvent, error) {
	var ev SyncEvent
	if err := strict(data, &ev); err != nil {
		return SyncEvent{}, fmt.Errorf("decode sync event: %w", err)
	}
	if ev.Pair == (common.Address{}) {
		return SyncEvent{}, fmt.Errorf("decode sync event: missing pair address")
	}
	if ev.Reserve0 == nil || ev.Reserve1 == nil {
		return SyncEvent{}, fmt.Errorf("decode sync event: missing reserves")
	}
	return ev, nil
}

// DecodePriceTick parses a queued price-tick payload.
func DecodePriceTick(data []byte) (PriceTick, error) {
	var t PriceTick
	if err := strict(data, &t); err != nil {
		return PriceTick{}, fmt.Errorf("decode price tick: %w", err)
	}
	if t.PairAddress == "" {
		return PriceTick{}, fmt.Errorf("decode price tick: missing pair address")
	}
	return t, nil
}

// DecodePair parses a KV-stored pair record.
func DecodePair(data []byte) (Pair, error) {
	var p Pair
	if err := strict(data, &p); err != nil {
		return Pair{}, fmt.Errorf("decode pair record: %w", err)
	}
	return p, nil
}
