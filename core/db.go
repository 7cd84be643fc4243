package core

// DBOrdering is a single sort criterion on a listing, bound from the API's
// `?ordering=` query parameter and rendered into SQL by the repositories
// (which whitelist the sortable columns).
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
