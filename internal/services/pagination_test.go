package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 123_000_000, time.UTC)
	id := utils.NewSixID()

	gotT, gotID, err := DecodeCursor(EncodeCursor(ts, id))
	require.NoError(t, err)
	assert.True(t, ts.Equal(gotT))
	assert.Equal(t, id, gotID)

	for _, bad := range []string{"nounderscore", "abc_" + id.String(), "123_short"} {
		_, _, err := DecodeCursor(bad)
		assert.Error(t, err, bad)
	}
}

func TestApplyCursor(t *testing.T) {
	id := utils.NewSixID()
	cursor := EncodeCursor(time.UnixMilli(1_700_000_000_000), id)

	filter := bson.M{"deleted": false}
	applyCursor(filter, "published_at", cursor)
	require.Contains(t, filter, "$or")
	or := filter["$or"].(bson.A)
	assert.Equal(t, bson.M{"$lt": id}, or[0].(bson.M)["_id"])

	// an existing $or is preserved alongside the cursor condition
	filter = bson.M{"$or": bson.A{bson.M{"seller_id": id}, bson.M{"buyer_id": id}}}
	applyCursor(filter, "created_at", cursor)
	assert.NotContains(t, filter, "$or")
	assert.Len(t, filter["$and"], 2)

	filter = bson.M{}
	applyCursor(filter, "created_at", "garbage")
	assert.Empty(t, filter)
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, PageSize(0))
	assert.Equal(t, 5, PageSize(5))
	assert.Equal(t, MaxPageSize, PageSize(1000))
}
