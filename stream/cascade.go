// Package stream provides the DynamoDB Streams handler that completes
// oversize cascade deletes.
//
// A delete too large for one transaction is tombstoned at its subtree
// root (the deleting attribute, set by the store package). This handler
// watches the node table's stream for those tombstones and removes the
// tombstoned row together with everything its range contains. The work is
// idempotent: a retried event re-deletes an already-empty range.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/shopspring/decimal"

	"github.com/jacentio/espalier/store"
)

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// HandleCascadeDelete processes DynamoDB stream events and removes the
// ranges of freshly tombstoned rows. Designed to be used as an AWS Lambda
// handler.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	// Only process MODIFY events where the tombstone was added
	if record.EventName != "MODIFY" {
		return nil
	}

	oldMark := getNumberAttr(record.Change.OldImage, "deleting")
	newMark := getNumberAttr(record.Change.NewImage, "deleting")
	if oldMark != 0 || newMark == 0 {
		return nil
	}

	id := getStringAttr(record.Change.NewImage, "id")
	forestID := getStringAttr(record.Change.NewImage, "forest_id")
	lo, err := getDecimalAttr(record.Change.NewImage, "lo")
	if err != nil {
		return fmt.Errorf("record %s: %w", record.EventID, err)
	}
	hi, err := getDecimalAttr(record.Change.NewImage, "hi")
	if err != nil {
		return fmt.Errorf("record %s: %w", record.EventID, err)
	}

	h.logger.Info("completing cascade delete",
		"node", id,
		"forest", forestID,
		"lo", lo.String(),
		"hi", hi.String(),
	)

	// The tombstoned row's own lo sits inside [lo, hi], so one range
	// pass removes the subtree and the tombstone together.
	removed, err := h.store.DeleteRange(ctx, forestID, lo, hi)
	if err != nil {
		return fmt.Errorf("delete range: %w", err)
	}

	h.logger.Info("cascade delete completed",
		"node", id,
		"forest", forestID,
		"rowsRemoved", removed,
	)
	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts an integer number attribute from a DynamoDB
// stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// getDecimalAttr extracts a fixed-point number attribute from a DynamoDB
// stream image.
func getDecimalAttr(image map[string]events.DynamoDBAttributeValue, key string) (decimal.Decimal, error) {
	v, ok := image[key]
	if !ok || v.DataType() != events.DataTypeNumber {
		return decimal.Decimal{}, fmt.Errorf("missing number attribute %s", key)
	}
	d, err := decimal.NewFromString(v.Number())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad number attribute %s=%q: %w", key, v.Number(), err)
	}
	return d, nil
}
