package exchange

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"gridexchange/internal/model"
)

var (
	ErrUnknownPair        = errors.New("exchange: unknown zone pair")
	ErrMissingReading     = errors.New("exchange: no reading for neighbor")
	ErrMalformedMagnitude = errors.New("exchange: malformed flow magnitude")
)

type Option func(*Normalizer)

func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// Normalizer turns raw widget readings into exchange records. It keeps no
// mutable state and may be shared between goroutines.
type Normalizer struct {
	now    func() time.Time
	logger *slog.Logger
}

func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) Normalize(zoneA, zoneB string, readings []model.RawReading) (model.ExchangeRecord, error) {
	key, neighborID, err := resolvePair(zoneA, zoneB)
	if err != nil {
		return model.ExchangeRecord{}, err
	}
	neighbor := otherZone(strings.Split(key, keySeparator))

	reading, err := n.selectReading(key, neighborID, readings)
	if err != nil {
		return model.ExchangeRecord{}, err
	}

	magnitude, err := parseMagnitude(reading.MagnitudeText)
	if err != nil {
		return model.ExchangeRecord{}, fmt.Errorf("%s: %w", key, err)
	}

	return model.ExchangeRecord{
		SortedZoneKeys: key,
		Datetime:       n.now(),
		NetFlow:        orientedSign(key, polarity(neighbor, reading.ArrowDirection)) * magnitude,
		Source:         SourceName,
	}, nil
}

// NormalizeAll builds one record per registered border. Borders that fail are
// reported in the joined error; the records that did succeed are still returned.
func (n *Normalizer) NormalizeAll(readings []model.RawReading) ([]model.ExchangeRecord, error) {
	neighbors := Neighbors()
	records := make([]model.ExchangeRecord, 0, len(neighbors))
	var errs []error
	for _, neighbor := range neighbors {
		record, err := n.Normalize(LocalZone, neighbor.Zone, readings)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, record)
	}
	return records, errors.Join(errs...)
}

func resolvePair(zoneA, zoneB string) (string, string, error) {
	key := SortedZoneKeys(zoneA, zoneB)
	neighborID, ok := neighborIDs[key]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownPair, key)
	}
	return key, neighborID, nil
}

func (n *Normalizer) selectReading(key, neighborID string, readings []model.RawReading) (model.RawReading, error) {
	var (
		found   model.RawReading
		matches int
	)
	for _, reading := range readings {
		if !strings.EqualFold(strings.TrimSpace(reading.NeighborID), neighborID) {
			continue
		}
		if matches == 0 {
			found = reading
		}
		matches++
	}

	if matches == 0 {
		return model.RawReading{}, fmt.Errorf("%w: %s (marker %q)", ErrMissingReading, key, neighborID)
	}
	if matches > 1 {
		n.logger.Warn("duplicate readings for neighbor, using first",
			slog.String("key", key),
			slog.String("marker", neighborID),
			slog.Int("count", matches),
		)
	}
	return found, nil
}

// parseMagnitude reads the leading number of a "<number> <unit>" string.
func parseMagnitude(text string) (float64, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty text", ErrMalformedMagnitude)
	}
	token := strings.ReplaceAll(fields[0], "'", "")

	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedMagnitude, text)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformedMagnitude, text)
	}
	return value, nil
}

func polarity(neighbor, arrowDirection string) model.Flow {
	if strings.EqualFold(strings.TrimSpace(arrowDirection), exportArrows[neighbor]) {
		return model.FlowExport
	}
	return model.FlowImport
}

// orientedSign maps the local polarity onto the key direction: a CH export is
// positive when CH comes first in the key and negative when the neighbour does.
func orientedSign(key string, flow model.Flow) float64 {
	sign := -1.0
	if flow == model.FlowExport {
		sign = 1.0
	}
	if !strings.HasPrefix(key, LocalZone+keySeparator) {
		sign = -sign
	}
	return sign
}
