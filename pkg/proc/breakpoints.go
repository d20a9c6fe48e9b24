package proc

import (
	"errors"
	"fmt"
	"sort"
)

// Hit count policies. Any positive value N removes the breakpoint after N
// satisfied hits.
const (
	// HitCountUnlimited breakpoints are never removed automatically.
	HitCountUnlimited = 0
	// HitCountRunTo breakpoints only activate through a run to location
	// and are removed on the next resume.
	HitCountRunTo = -1
)

// ErrInvalidHitCount is returned when a hit count lower than -1 is used.
var ErrInvalidHitCount = errors.New("invalid hit count")

// ValidHitCount returns an error if n is not an acceptable hit count.
func ValidHitCount(n int) error {
	if n < HitCountRunTo {
		return fmt.Errorf("%w %d: must be -1, 0 or positive", ErrInvalidHitCount, n)
	}
	return nil
}

// Location is a position in the debuggee's source.
type Location struct {
	File string
	Line int
}

func (loc Location) String() string {
	return fmt.Sprintf("%s:%d", loc.File, loc.Line)
}

// Valid returns true if loc names a file and a positive line.
func (loc Location) Valid() bool {
	return loc.File != "" && loc.Line > 0
}

// Breakpoint is a user configured stop point. The location and the hit
// count are fixed at creation, a new Breakpoint must be built to change
// them.
type Breakpoint struct {
	location Location
	enabled  bool
	cond     string
	hitCount int
}

// NewBreakpoint returns a disabled, unconditional breakpoint at loc that is
// never removed automatically.
func NewBreakpoint(loc Location) *Breakpoint {
	return &Breakpoint{location: loc}
}

// NewBreakpointWithOptions returns a breakpoint at loc. It fails if
// hitCount is not valid.
func NewBreakpointWithOptions(loc Location, enabled bool, cond string, hitCount int) (*Breakpoint, error) {
	if err := ValidHitCount(hitCount); err != nil {
		return nil, err
	}
	return &Breakpoint{location: loc, enabled: enabled, cond: cond, hitCount: hitCount}, nil
}

// Location returns the position of the breakpoint.
func (bp *Breakpoint) Location() Location { return bp.location }

// Enabled returns true if the breakpoint participates in hit evaluation.
func (bp *Breakpoint) Enabled() bool { return bp.enabled }

// SetEnabled changes the enabled flag.
func (bp *Breakpoint) SetEnabled(enabled bool) { bp.enabled = enabled }

// Cond returns the condition expression, the empty string means the
// breakpoint is unconditional.
func (bp *Breakpoint) Cond() string { return bp.cond }

// SetCond replaces the condition. It is used on the next evaluation.
func (bp *Breakpoint) SetCond(cond string) { bp.cond = cond }

// HitCount returns the configured hit count policy.
func (bp *Breakpoint) HitCount() int { return bp.hitCount }

// Equal compares location, enabled flag and condition. The hit count is
// not part of a breakpoint's identity.
func (bp *Breakpoint) Equal(other *Breakpoint) bool {
	if bp == nil || other == nil {
		return bp == other
	}
	return bp.location == other.location && bp.enabled == other.enabled && bp.cond == other.cond
}

func (bp *Breakpoint) String() string {
	s := "Breakpoint at " + bp.location.String()
	if !bp.enabled {
		s += " (disabled)"
	}
	if bp.cond != "" {
		s += " if " + bp.cond
	}
	return s
}

// BreakpointExistsError is returned when trying to set a breakpoint at
// a location that already has a breakpoint set for it.
type BreakpointExistsError struct {
	Location Location
	ID       int
}

func (bpe BreakpointExistsError) Error() string {
	return fmt.Sprintf("Breakpoint %d exists at %s", bpe.ID, bpe.Location)
}

// NoBreakpointError is returned when trying to
// clear a breakpoint that does not exist.
type NoBreakpointError struct {
	ID int
}

func (nbp NoBreakpointError) Error() string {
	return fmt.Sprintf("no breakpoint with id %d", nbp.ID)
}

// LogicalBreakpoint is a Breakpoint together with its identity and the
// runtime bookkeeping of its hit count policy.
type LogicalBreakpoint struct {
	LogicalID  int
	Breakpoint *Breakpoint

	// TotalHitCount is the number of satisfied hits observed since the
	// debuggee was attached.
	TotalHitCount uint64

	// Transient breakpoints were created by a run to location and are not
	// persisted.
	Transient bool

	consumed int
	armed    bool
}

// Armed returns true if a run to location armed this breakpoint.
func (lbp *LogicalBreakpoint) Armed() bool { return lbp.armed }

// Active returns true if reaching the breakpoint should be evaluated.
// Disabled breakpoints are inert, a run to location breakpoint is inert
// until armed. Arming also activates a disabled breakpoint.
func (lbp *LogicalBreakpoint) Active() bool {
	if lbp.armed {
		return true
	}
	return lbp.Breakpoint.Enabled() && lbp.Breakpoint.HitCount() != HitCountRunTo
}

// Remaining returns how many satisfied hits are left before the breakpoint
// is removed, or -1 if it is never removed by hits.
func (lbp *LogicalBreakpoint) Remaining() int {
	switch n := lbp.Breakpoint.HitCount(); {
	case n > 0:
		return n - lbp.consumed
	case n == HitCountRunTo && lbp.armed:
		return 1 - lbp.consumed
	default:
		return -1
	}
}

// Hit records a satisfied hit. It returns true if the budget is exhausted
// and the breakpoint must be removed right away. A stop caused by a run to
// location does not consume the budget, armed breakpoints with hit count
// -1 are removed on the next resume instead.
func (lbp *LogicalBreakpoint) Hit() (exhausted bool) {
	lbp.TotalHitCount++
	n := lbp.Breakpoint.HitCount()
	if lbp.armed {
		if n == HitCountRunTo {
			lbp.consumed = 1
		}
		return false
	}
	if n <= 0 {
		return false
	}
	lbp.consumed++
	return lbp.consumed >= n
}

// BreakpointMap holds the breakpoints of a session keyed by logical ID.
type BreakpointMap struct {
	M map[int]*LogicalBreakpoint

	byLocation map[Location]int
	nextID     int
}

// NewBreakpointMap creates a new BreakpointMap.
func NewBreakpointMap() BreakpointMap {
	return BreakpointMap{
		M:          make(map[int]*LogicalBreakpoint),
		byLocation: make(map[Location]int),
	}
}

// Add inserts bp with a fresh logical ID.
func (bpmap *BreakpointMap) Add(bp *Breakpoint) (*LogicalBreakpoint, error) {
	return bpmap.AddWithID(0, bp)
}

// AddWithID inserts bp using id, or a fresh ID if id is zero. Fails if a
// breakpoint already exists at the same location or with the same id.
func (bpmap *BreakpointMap) AddWithID(id int, bp *Breakpoint) (*LogicalBreakpoint, error) {
	if !bp.Location().Valid() {
		return nil, fmt.Errorf("invalid location %q", bp.Location())
	}
	if other, exists := bpmap.byLocation[bp.Location()]; exists {
		return nil, BreakpointExistsError{Location: bp.Location(), ID: other}
	}
	if id <= 0 {
		bpmap.nextID++
		id = bpmap.nextID
	} else {
		if _, exists := bpmap.M[id]; exists {
			return nil, BreakpointExistsError{Location: bp.Location(), ID: id}
		}
		if id > bpmap.nextID {
			bpmap.nextID = id
		}
	}
	lbp := &LogicalBreakpoint{LogicalID: id, Breakpoint: bp}
	bpmap.M[id] = lbp
	bpmap.byLocation[bp.Location()] = id
	return lbp, nil
}

// AtLocation returns the breakpoint set at loc, or nil.
func (bpmap *BreakpointMap) AtLocation(loc Location) *LogicalBreakpoint {
	id, ok := bpmap.byLocation[loc]
	if !ok {
		return nil
	}
	return bpmap.M[id]
}

// Remove deletes the breakpoint with the given id.
func (bpmap *BreakpointMap) Remove(id int) (*LogicalBreakpoint, error) {
	lbp, ok := bpmap.M[id]
	if !ok {
		return nil, NoBreakpointError{ID: id}
	}
	delete(bpmap.M, id)
	delete(bpmap.byLocation, lbp.Breakpoint.Location())
	return lbp, nil
}

// Replace swaps the Breakpoint of an existing logical breakpoint. The
// location can not change. Changing the hit count restarts the budget.
func (bpmap *BreakpointMap) Replace(id int, bp *Breakpoint) error {
	lbp, ok := bpmap.M[id]
	if !ok {
		return NoBreakpointError{ID: id}
	}
	if bp.Location() != lbp.Breakpoint.Location() {
		return fmt.Errorf("can not move breakpoint %d from %s to %s", id, lbp.Breakpoint.Location(), bp.Location())
	}
	if bp.HitCount() != lbp.Breakpoint.HitCount() {
		lbp.consumed = 0
	}
	lbp.Breakpoint = bp
	return nil
}

// Arm activates lbp for the next run to location.
func (bpmap *BreakpointMap) Arm(id int) {
	if lbp, ok := bpmap.M[id]; ok {
		lbp.armed = true
		if lbp.Breakpoint.HitCount() == HitCountRunTo {
			lbp.consumed = 0
		}
	}
}

// Disarm clears the run to location flag of lbp.
func (bpmap *BreakpointMap) Disarm(id int) {
	if lbp, ok := bpmap.M[id]; ok {
		lbp.armed = false
	}
}

// Armed returns the breakpoints armed by a run to location, sorted by ID.
func (bpmap *BreakpointMap) Armed() []*LogicalBreakpoint {
	var r []*LogicalBreakpoint
	for _, lbp := range bpmap.List() {
		if lbp.armed {
			r = append(r, lbp)
		}
	}
	return r
}

// List returns every breakpoint sorted by ID.
func (bpmap *BreakpointMap) List() []*LogicalBreakpoint {
	r := make([]*LogicalBreakpoint, 0, len(bpmap.M))
	for _, lbp := range bpmap.M {
		r = append(r, lbp)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].LogicalID < r[j].LogicalID })
	return r
}

// ResetHitCounts zeroes the observed hit counters and restarts every
// budget. It is used when a new debuggee is attached.
func (bpmap *BreakpointMap) ResetHitCounts() {
	for _, lbp := range bpmap.M {
		lbp.TotalHitCount = 0
		lbp.consumed = 0
	}
}

// Clear removes every breakpoint. IDs are not reused.
func (bpmap *BreakpointMap) Clear() {
	bpmap.M = make(map[int]*LogicalBreakpoint)
	bpmap.byLocation = make(map[Location]int)
}

// BreakpointState describes the outcome of reaching a breakpoint.
type BreakpointState struct {
	*LogicalBreakpoint
	// Active is true if the condition of the breakpoint was satisfied.
	Active bool
	// Removed is true if the hit exhausted the budget of the breakpoint.
	Removed bool
	// CondError contains any error encountered while evaluating the
	// breakpoint's condition.
	CondError error
}

func (bpstate *BreakpointState) String() string {
	s := bpstate.LogicalBreakpoint.Breakpoint.String()
	if bpstate.Active {
		s += " active"
	}
	if bpstate.Removed {
		s += " removed"
	}
	if bpstate.CondError != nil {
		s += fmt.Sprintf(" condition error: %v", bpstate.CondError)
	}
	return s
}
