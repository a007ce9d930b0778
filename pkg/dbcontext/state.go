package dbcontext

// EntityState is the change-tracking state of an entity within a Context.
type EntityState int

const (
	// Detached entities are not tracked.
	Detached EntityState = iota
	// Unchanged entities are tracked and match the store.
	Unchanged
	// Added entities will be inserted on the next SaveChanges.
	Added
	// Modified entities will be updated on the next SaveChanges.
	Modified
	// Deleted entities will be deleted on the next SaveChanges.
	Deleted
)

func (s EntityState) String() string {
	switch s {
	case Detached:
		return "detached"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// pending reports whether the state carries a mutation that SaveChanges would flush.
func (s EntityState) pending() bool {
	return s == Added || s == Modified || s == Deleted
}
