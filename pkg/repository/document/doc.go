// Package document writes and reads MongoDB documents. Every operation takes an optional
// caller-owned session; the package never starts, commits or ends sessions itself.
package document

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrInvalidIdentifier is returned when an id is not a valid ObjectID hex string.
	ErrInvalidIdentifier = errors.New("invalid document identifier")
	// ErrEmptyUpdate is returned when an update specification has no operators.
	ErrEmptyUpdate = errors.New("update specification is empty")
)

// Doc is the base of stored documents. Embed it inline to get an ObjectID primary key that
// InsertOne and InsertMany fill in:
//
//	type Order struct {
//		document.Doc `bson:",inline"`
//		Status       string `bson:"status"`
//	}
type Doc struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
}

// ObjectID returns the document id.
func (d *Doc) ObjectID() primitive.ObjectID { return d.ID }

// SetObjectID sets the document id.
func (d *Doc) SetObjectID(id primitive.ObjectID) { d.ID = id }

type identified interface {
	ObjectID() primitive.ObjectID
	SetObjectID(id primitive.ObjectID)
}

// Collection is the part of *mongo.Collection the writer and reader use.
type Collection interface {
	Name() string
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	FindOneAndReplace(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.FindOneAndReplaceOptions) *mongo.SingleResult
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

var _ Collection = (*mongo.Collection)(nil)

// ParseID parses a hex ObjectID. Failures wrap ErrInvalidIdentifier.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w %q: %v", ErrInvalidIdentifier, id, err)
	}
	return oid, nil
}
