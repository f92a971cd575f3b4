package db

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Operation is a unit of work retried by WithRetries.
type Operation func() error

// IsDuplicateKeyError classifies errors that deserve another attempt.
type IsDuplicateKeyError func(err error) bool

const DefaultMaxRetries = 3

// Try runs op with DefaultMaxRetries, retrying only on duplicate key errors.
// Operations must generate a fresh id on every attempt.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsIDCollision)
}

// WithRetries runs op once plus up to maxRetries more times while isDuplicateKey(err) holds.
func WithRetries(op Operation, maxRetries int, isDuplicateKey IsDuplicateKeyError) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !isDuplicateKey(err) {
			return err
		}
		zap.L().Debug("duplicate key on insert, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// Document is anything with a regenerable primary key.
type Document interface {
	GenID()
}

// InsertOne inserts doc, regenerating its id on _id collisions.
func InsertOne(ctx context.Context, coll *mongo.Collection, doc Document) error {
	return Try(func() error {
		doc.GenID()
		_, err := coll.InsertOne(ctx, doc)
		return err
	})
}

// IsMongoDuplicateKeyError reports whether err carries a 11000 write error.
func IsMongoDuplicateKeyError(err error) bool {
	return duplicateKeyMessage(err) != ""
}

// IsIDCollision reports a duplicate key on the _id index only, so unique
// constraints on other fields are not retried.
func IsIDCollision(err error) bool {
	msg := duplicateKeyMessage(err)
	return msg != "" && DuplicateKeyIndex(err) == "_id_"
}

var dupIndexPattern = regexp.MustCompile(`index: (\S+) dup key`)

// DuplicateKeyIndex extracts the violated index name from a duplicate key error, or "".
func DuplicateKeyIndex(err error) string {
	m := dupIndexPattern.FindStringSubmatch(duplicateKeyMessage(err))
	if len(m) != 2 {
		return ""
	}
	return m[1]
}

func duplicateKeyMessage(err error) string {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return e.Message
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 {
				return e.Message
			}
		}
	}
	return ""
}
