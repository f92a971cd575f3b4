package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/returnordie/til-i-allt-sub001/internal/policy"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is the authorization denial shared with the policy package.
	ErrForbidden = policy.ErrDenied
	// ErrInvalidCredentials is returned by Authenticate for any login mismatch.
	ErrInvalidCredentials = errors.New("these credentials do not match our records")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

// findOne decodes the document matching filter into out, mapping no-documents to NotFound.
func findOne(ctx context.Context, coll *mongo.Collection, entity string, filter any, out any) error {
	err := coll.FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound(entity)
	}
	if err != nil {
		return fmt.Errorf("error finding %s: %w", entity, err)
	}
	return nil
}
