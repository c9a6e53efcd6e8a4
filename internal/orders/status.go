package orders

type Status string

const (
	StatusPending    Status = "Pending"
	StatusConfirmed  Status = "Confirmed"
	StatusProcessing Status = "Processing"
	StatusFailed     Status = "Failed"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusConfirmed: true, StatusFailed: true},
	StatusConfirmed:  {StatusProcessing: true, StatusFailed: true},
	StatusProcessing: {},
	StatusFailed:     {},
}

// forward ranks the non-failure path Pending -> Confirmed -> Processing.
var forward = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusProcessing || s == StatusFailed
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Passed reports whether s is already beyond to on the forward path, as when
// a late duplicate asks to confirm an order that is already Processing.
func (s Status) Passed(to Status) bool {
	rs, ok := forward[s]
	if !ok {
		return false
	}
	rt, ok := forward[to]
	return ok && rs > rt
}
