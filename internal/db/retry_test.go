package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

// dupKeyErr mimics the server error for a unique index violation.
func dupKeyErr(index, key string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: test.collection index: %s dup key: { : \"%s\" }", index, key),
	}}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetries(func() error { calls++; return nil }, 3, IsMongoDuplicateKeyError)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetries_FailureNonDuplicateKey(t *testing.T) {
	calls := 0
	boom := errors.New("some other error")
	err := WithRetries(func() error { calls++; return boom }, 3, IsMongoDuplicateKeyError)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	calls := 0
	id := utils.SixID{0, 0, 0, 0, 0, 1}
	err := WithRetries(func() error {
		calls++
		return dupKeyErr("_id_", id.String())
	}, 3, IsMongoDuplicateKeyError)

	require.Error(t, err)
	assert.True(t, IsMongoDuplicateKeyError(err))
	assert.Equal(t, 4, calls)
}

func TestWithRetries_CollisionResolves(t *testing.T) {
	original := utils.NewSixIDHook
	defer func() { utils.NewSixIDHook = original }()

	id1 := utils.SixID{1, 2, 3, 4, 5, 1}
	id2 := utils.SixID{1, 2, 3, 4, 5, 2}
	queue := []utils.SixID{id1, id1, id2}
	hookCalls := 0
	utils.NewSixIDHook = func() (utils.SixID, bool) {
		if hookCalls < len(queue) {
			id := queue[hookCalls]
			hookCalls++
			return id, true
		}
		return utils.SixID{}, false
	}

	inserted := map[utils.SixID]bool{id1: true}
	calls := 0
	err := WithRetries(func() error {
		calls++
		id := utils.NewSixID()
		if inserted[id] {
			return dupKeyErr("_id_", id.String())
		}
		inserted[id] = true
		return nil
	}, 3, IsMongoDuplicateKeyError)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, hookCalls)
	assert.True(t, inserted[id2])
	assert.Len(t, inserted, 2)
}

func TestTry_DoesNotRetryUniqueFieldViolation(t *testing.T) {
	calls := 0
	err := Try(func() error {
		calls++
		return dupKeyErr("username_1", "alice")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "username_1", DuplicateKeyIndex(err))
	assert.False(t, IsIDCollision(err))
}

func TestDuplicateKeyIndex(t *testing.T) {
	assert.Equal(t, "_id_", DuplicateKeyIndex(dupKeyErr("_id_", "x")))
	assert.Equal(t, "", DuplicateKeyIndex(errors.New("nope")))

	bulk := mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{{
		WriteError: mongo.WriteError{Code: 11000, Message: "E11000 duplicate key error collection: t.users index: email_1 dup key: { email: \"a@b.c\" }"},
	}}}
	assert.True(t, IsMongoDuplicateKeyError(bulk))
	assert.Equal(t, "email_1", DuplicateKeyIndex(bulk))
}
