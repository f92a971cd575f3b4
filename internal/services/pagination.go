package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageSize clamps a requested limit into [1, MaxPageSize].
func PageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// EncodeCursor renders the "<unix millis>_<id>" keyset cursor.
func EncodeCursor(t time.Time, id utils.SixID) string {
	return fmt.Sprintf("%d_%s", t.UnixMilli(), id.String())
}

// DecodeCursor parses a cursor from EncodeCursor.
func DecodeCursor(cursor string) (time.Time, utils.SixID, error) {
	ts, idStr, ok := strings.Cut(cursor, "_")
	if !ok {
		return time.Time{}, utils.SixID{}, fmt.Errorf("invalid cursor %q", cursor)
	}
	millis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, utils.SixID{}, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := utils.ParseSixID(idStr)
	if err != nil {
		return time.Time{}, utils.SixID{}, fmt.Errorf("invalid cursor id: %w", err)
	}
	return time.UnixMilli(millis).UTC(), id, nil
}

// applyCursor restricts filter to documents after cursor in (field desc, _id desc) order.
// A malformed cursor is logged and ignored, so the first page is returned.
func applyCursor(filter bson.M, field, cursor string) {
	if cursor == "" {
		return
	}
	t, id, err := DecodeCursor(cursor)
	if err != nil {
		zap.L().Warn("ignoring invalid cursor", zap.String("cursor", cursor), zap.Error(err))
		return
	}
	after := bson.A{
		bson.M{field: t, "_id": bson.M{"$lt": id}},
		bson.M{field: bson.M{"$lt": t}},
	}
	if existing, ok := filter["$or"]; ok {
		delete(filter, "$or")
		filter["$and"] = bson.A{bson.M{"$or": existing}, bson.M{"$or": after}}
		return
	}
	filter["$or"] = after
}

// descending is the sort matching applyCursor.
func descending(field string) bson.D {
	return bson.D{{Key: field, Value: -1}, {Key: "_id", Value: -1}}
}
