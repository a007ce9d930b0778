package document

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeSession stands in for a caller-owned session. The writer only carries it through the
// context, so no method is ever called on it.
type fakeSession struct{ mongo.Session }

// memCollection is an in-memory Collection understanding the filters expr.ToBSON produces and
// the operators UpdateSpec renders.
type memCollection struct {
	mu       sync.Mutex
	name     string
	docs     []bson.M
	calls    []string
	sessions []mongo.Session
	failWith error
}

func newMemCollection(name string) *memCollection {
	return &memCollection{name: name}
}

func (c *memCollection) Name() string { return c.name }

func (c *memCollection) record(ctx context.Context, call string) error {
	c.calls = append(c.calls, call)
	c.sessions = append(c.sessions, mongo.SessionFromContext(ctx))
	return c.failWith
}

func (c *memCollection) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *memCollection) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

func (c *memCollection) InsertOne(ctx context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "InsertOne"); err != nil {
		return nil, err
	}
	id, err := c.insert(document)
	if err != nil {
		return nil, err
	}
	return &mongo.InsertOneResult{InsertedID: id}, nil
}

func (c *memCollection) InsertMany(ctx context.Context, documents []interface{}, _ ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "InsertMany"); err != nil {
		return nil, err
	}
	res := &mongo.InsertManyResult{}
	for _, document := range documents {
		id, err := c.insert(document)
		if err != nil {
			return res, err
		}
		res.InsertedIDs = append(res.InsertedIDs, id)
	}
	return res, nil
}

func (c *memCollection) FindOneAndReplace(ctx context.Context, filter interface{}, replacement interface{}, _ ...*options.FindOneAndReplaceOptions) *mongo.SingleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "FindOneAndReplace"); err != nil {
		return errResult(err)
	}
	i := c.indexOf(filter.(bson.D))
	if i < 0 {
		return errResult(mongo.ErrNoDocuments)
	}
	before := c.docs[i]
	doc, err := toM(replacement)
	if err != nil {
		return errResult(err)
	}
	doc["_id"] = before["_id"]
	c.docs[i] = doc
	return mongo.NewSingleResultFromDocument(before, nil, nil)
}

func (c *memCollection) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, _ ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "FindOneAndUpdate"); err != nil {
		return errResult(err)
	}
	i := c.indexOf(filter.(bson.D))
	if i < 0 {
		return errResult(mongo.ErrNoDocuments)
	}
	before := copyM(c.docs[i])
	for _, op := range update.(bson.D) {
		for _, field := range op.Value.(bson.D) {
			switch op.Key {
			case "$set":
				c.docs[i][field.Key] = field.Value
			case "$unset":
				delete(c.docs[i], field.Key)
			case "$inc":
				c.docs[i][field.Key] = addNumbers(c.docs[i][field.Key], field.Value)
			default:
				return errResult(fmt.Errorf("unsupported update operator %s", op.Key))
			}
		}
	}
	return mongo.NewSingleResultFromDocument(before, nil, nil)
}

func (c *memCollection) DeleteOne(ctx context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "DeleteOne"); err != nil {
		return nil, err
	}
	i := c.indexOf(filter.(bson.D))
	if i < 0 {
		return &mongo.DeleteResult{}, nil
	}
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

func (c *memCollection) DeleteMany(ctx context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "DeleteMany"); err != nil {
		return nil, err
	}
	kept := c.docs[:0]
	var deleted int64
	for _, doc := range c.docs {
		if matches(doc, filter.(bson.D)) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return &mongo.DeleteResult{DeletedCount: deleted}, nil
}

func (c *memCollection) FindOne(ctx context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "FindOne"); err != nil {
		return errResult(err)
	}
	i := c.indexOf(filter.(bson.D))
	if i < 0 {
		return errResult(mongo.ErrNoDocuments)
	}
	return mongo.NewSingleResultFromDocument(copyM(c.docs[i]), nil, nil)
}

func (c *memCollection) Find(ctx context.Context, filter interface{}, _ ...*options.FindOptions) (*mongo.Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "Find"); err != nil {
		return nil, err
	}
	var found []interface{}
	for _, doc := range c.docs {
		if matches(doc, filter.(bson.D)) {
			found = append(found, copyM(doc))
		}
	}
	return mongo.NewCursorFromDocuments(found, nil, nil)
}

func (c *memCollection) insert(document interface{}) (primitive.ObjectID, error) {
	doc, err := toM(document)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, ok := doc["_id"].(primitive.ObjectID)
	if !ok {
		id = primitive.NewObjectID()
		doc["_id"] = id
	}
	if c.indexOf(bson.D{{Key: "_id", Value: id}}) >= 0 {
		return primitive.NilObjectID, mongo.WriteException{WriteErrors: []mongo.WriteError{{
			Code:    11000,
			Message: fmt.Sprintf("E11000 duplicate key error collection: %s dup key: { _id: %s }", c.name, id.Hex()),
		}}}
	}
	c.docs = append(c.docs, doc)
	return id, nil
}

func (c *memCollection) indexOf(filter bson.D) int {
	for i, doc := range c.docs {
		if matches(doc, filter) {
			return i
		}
	}
	return -1
}

func errResult(err error) *mongo.SingleResult {
	return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
}

func toM(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func copyM(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func matches(doc bson.M, filter bson.D) bool {
	for _, e := range filter {
		switch e.Key {
		case "$and":
			for _, child := range e.Value.(bson.A) {
				if !matches(doc, child.(bson.D)) {
					return false
				}
			}
		case "$or":
			matched := false
			for _, child := range e.Value.(bson.A) {
				if matches(doc, child.(bson.D)) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		case "$nor":
			for _, child := range e.Value.(bson.A) {
				if matches(doc, child.(bson.D)) {
					return false
				}
			}
		default:
			actual, present := doc[e.Key]
			ops, ok := e.Value.(bson.D)
			if !ok {
				if !present || !sameValue(actual, e.Value) {
					return false
				}
				continue
			}
			for _, op := range ops {
				if !apply(op.Key, actual, present, op.Value) {
					return false
				}
			}
		}
	}
	return true
}

func apply(op string, actual any, present bool, want any) bool {
	switch op {
	case "$eq":
		return present && sameValue(actual, want)
	case "$ne":
		return !present || !sameValue(actual, want)
	case "$in":
		for _, candidate := range want.(bson.A) {
			if present && sameValue(actual, candidate) {
				return true
			}
		}
		return false
	}
	if !present {
		return false
	}
	a, okA := number(actual)
	b, okB := number(want)
	if okA && okB {
		return ordered(op, compareFloats(a, b))
	}
	as, okA := actual.(string)
	bs, okB := want.(string)
	if okA && okB {
		return ordered(op, compareStrings(as, bs))
	}
	return false
}

func ordered(op string, cmp int) bool {
	switch op {
	case "$gt":
		return cmp > 0
	case "$gte":
		return cmp >= 0
	case "$lt":
		return cmp < 0
	case "$lte":
		return cmp <= 0
	}
	return false
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sameValue(a, b any) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	return a == b
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func addNumbers(current, delta any) any {
	if current == nil {
		current = int64(0)
	}
	x, _ := number(current)
	y, _ := number(delta)
	_, xFloat := current.(float64)
	_, yFloat := delta.(float64)
	if xFloat || yFloat {
		return x + y
	}
	return int64(x) + int64(y)
}
