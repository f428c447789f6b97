package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PerpVault/internal/event"
	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

var ErrMalformed = errors.New("malformed event")

// Subject layout:
//
//	perp.commands.<EventType>[.<partition>]  caller commands, payload is the event JSON
//	perp.feeds.prices.<feed>                 oracle prices, decimal wire format
//	perp.feeds.rates.<product>               holding rates, decimal wire format
const (
	commandPrefix = "perp.commands."
	pricePrefix   = "perp.feeds.prices."
	ratePrefix    = "perp.feeds.rates."
)

// EventTypeForSubject resolves the event type a subject carries.
func EventTypeForSubject(subject string) (string, error) {
	switch {
	case strings.HasPrefix(subject, pricePrefix):
		return event.EventTypeOraclePriceUpdate.String(), nil
	case strings.HasPrefix(subject, ratePrefix):
		return event.EventTypeInterestRateUpdate.String(), nil
	case strings.HasPrefix(subject, commandPrefix):
		name, _, _ := strings.Cut(strings.TrimPrefix(subject, commandPrefix), ".")
		if name == "" {
			return "", fmt.Errorf("%w: subject %q names no event type", ErrMalformed, subject)
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: unrouted subject %q", ErrMalformed, subject)
}

// ParseRawEvent converts a RawEvent into a typed event.Event. The ingestion
// shell validates here so the core only ever sees well-formed input.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	et, err := event.ParseEventType(eventType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch et {
	case event.EventTypeOraclePriceUpdate:
		return parsePriceFeed(raw.Data)
	case event.EventTypeInterestRateUpdate:
		return parseRateFeed(raw.Data)
	}

	evt, err := event.Decode(et, raw.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validateHeader(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// validateHeader rejects caller commands that cannot be attributed or
// deduplicated.
func validateHeader(evt event.Event) error {
	if evt.IdempotencyKey() == uuid.Nil.String() {
		return fmt.Errorf("%w: %s missing request_id", ErrMalformed, evt.EventType())
	}
	if evt.OccurredAt().IsZero() {
		return fmt.Errorf("%w: %s missing timestamp", ErrMalformed, evt.EventType())
	}
	return nil
}

// --- feed wire formats ---
// Feeds publish human-readable decimals; the core works in 1e8 fixed point.

type priceFeedJSON struct {
	Feed        string `json:"feed"`
	Price       string `json:"price"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePriceFeed(data []byte) (*event.OraclePriceUpdate, error) {
	var j priceFeedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: parse OraclePriceUpdate: %v", ErrMalformed, err)
	}
	if j.Feed == "" {
		return nil, fmt.Errorf("%w: price update missing feed", ErrMalformed)
	}
	if j.Sequence <= 0 {
		return nil, fmt.Errorf("%w: price update %s has sequence %d", ErrMalformed, j.Feed, j.Sequence)
	}
	price, err := fpmath.ParseFixed(j.Price, fpmath.PriceConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &event.OraclePriceUpdate{
		Feed:          j.Feed,
		Price:         fpmath.Price(price),
		PriceSequence: j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs).UTC(),
	}, nil
}

type rateFeedJSON struct {
	ProductID   string `json:"product_id"`
	Rate        string `json:"rate"` // yearly, as a fraction: "0.1" is 10%
	EpochID     int64  `json:"epoch_id"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRateFeed(data []byte) (*event.InterestRateUpdate, error) {
	var j rateFeedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: parse InterestRateUpdate: %v", ErrMalformed, err)
	}
	product, err := strconv.ParseUint(j.ProductID, 10, 32)
	if err != nil || product == 0 {
		return nil, fmt.Errorf("%w: product_id %q", ErrMalformed, j.ProductID)
	}
	rate, err := fpmath.ParseFixed(j.Rate, fpmath.BPSConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if rate < 0 {
		return nil, fmt.Errorf("%w: negative rate %s", ErrMalformed, j.Rate)
	}
	return &event.InterestRateUpdate{
		Product:   uint32(product),
		Rate:      fpmath.BPS(rate),
		EpochID:   j.EpochID,
		Timestamp: time.UnixMicro(j.TimestampUs).UTC(),
	}, nil
}
