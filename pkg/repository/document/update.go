package document

import "go.mongodb.org/mongo-driver/bson"

// UpdateSpec builds a MongoDB update document from $set, $unset and $inc operators. Fields are
// rendered in the order they were added.
type UpdateSpec struct {
	set   bson.D
	unset bson.D
	inc   bson.D
}

// NewUpdate returns an empty update specification.
func NewUpdate() *UpdateSpec {
	return &UpdateSpec{}
}

// Set assigns value to field.
func (u *UpdateSpec) Set(field string, value any) *UpdateSpec {
	u.set = append(u.set, bson.E{Key: field, Value: value})
	return u
}

// Unset removes field.
func (u *UpdateSpec) Unset(field string) *UpdateSpec {
	u.unset = append(u.unset, bson.E{Key: field, Value: ""})
	return u
}

// Inc adds n to field, creating it when missing.
func (u *UpdateSpec) Inc(field string, n any) *UpdateSpec {
	u.inc = append(u.inc, bson.E{Key: field, Value: n})
	return u
}

// IsEmpty reports whether no operator was added.
func (u *UpdateSpec) IsEmpty() bool {
	return u == nil || len(u.set)+len(u.unset)+len(u.inc) == 0
}

// BSON renders the update document.
func (u *UpdateSpec) BSON() bson.D {
	out := bson.D{}
	if u == nil {
		return out
	}
	if len(u.set) > 0 {
		out = append(out, bson.E{Key: "$set", Value: u.set})
	}
	if len(u.unset) > 0 {
		out = append(out, bson.E{Key: "$unset", Value: u.unset})
	}
	if len(u.inc) > 0 {
		out = append(out, bson.E{Key: "$inc", Value: u.inc})
	}
	return out
}
