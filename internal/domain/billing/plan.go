// internal/domain/billing/plan.go
package billing

type PlanID string

const (
	PlanFree   PlanID = "free"
	PlanBasic  PlanID = "basic"
	PlanPro    PlanID = "pro"
	PlanAgency PlanID = "agency"
)

// Unlimited marks a limit that never exhausts.
const Unlimited = -1

// Plan is one tier of the fixed subscription hierarchy. Immutable
// configuration; a DailyLimit of 0 means no daily cap applies.
type Plan struct {
	ID           PlanID  `json:"id"`
	Name         string  `json:"name"`
	Rank         int     `json:"rank"`
	Price        float64 `json:"price"`
	MonthlyLimit int     `json:"monthly_limit"`
	DailyLimit   int     `json:"daily_limit,omitempty"`
	OverageRate  float64 `json:"overage_rate"`
	TeamLimit    int     `json:"team_limit"`
}

// AllowsOverage reports whether exhausted usage may continue against
// per-unit overage billing on this plan.
func (p Plan) AllowsOverage() bool {
	return p.OverageRate > 0
}

var plans = map[PlanID]Plan{
	PlanFree: {
		ID:           PlanFree,
		Name:         "Free",
		Rank:         0,
		Price:        0,
		MonthlyLimit: 5,
		DailyLimit:   3,
		OverageRate:  0,
		TeamLimit:    1,
	},
	PlanBasic: {
		ID:           PlanBasic,
		Name:         "Basic",
		Rank:         1,
		Price:        19,
		MonthlyLimit: 60,
		OverageRate:  0.10,
		TeamLimit:    1,
	},
	PlanPro: {
		ID:           PlanPro,
		Name:         "Pro",
		Rank:         2,
		Price:        49,
		MonthlyLimit: 150,
		OverageRate:  0.08,
		TeamLimit:    3,
	},
	PlanAgency: {
		ID:           PlanAgency,
		Name:         "Agency",
		Rank:         3,
		Price:        99,
		MonthlyLimit: Unlimited,
		OverageRate:  0,
		TeamLimit:    10,
	},
}

// PlanByID looks up a plan in the fixed catalog.
func PlanByID(id PlanID) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}

// Rank returns a plan's ordinal position in the hierarchy, -1 for
// unknown plans.
func Rank(id PlanID) int {
	p, ok := plans[id]
	if !ok {
		return -1
	}
	return p.Rank
}

// Plans lists the catalog in rank order.
func Plans() []Plan {
	return []Plan{plans[PlanFree], plans[PlanBasic], plans[PlanPro], plans[PlanAgency]}
}

type ChangeDirection int

const (
	ChangeInvalid ChangeDirection = iota
	ChangeSame
	ChangeUpgrade
	ChangeDowngrade
)

func (d ChangeDirection) String() string {
	switch d {
	case ChangeSame:
		return "same"
	case ChangeUpgrade:
		return "upgrade"
	case ChangeDowngrade:
		return "downgrade"
	default:
		return "invalid"
	}
}

// ComparePlans classifies a change from one plan to target by rank.
// Unknown plans compare as invalid so callers fail closed.
func ComparePlans(target, current PlanID) ChangeDirection {
	tr, cr := Rank(target), Rank(current)
	if tr < 0 || cr < 0 {
		return ChangeInvalid
	}
	switch {
	case tr == cr:
		return ChangeSame
	case tr > cr:
		return ChangeUpgrade
	default:
		return ChangeDowngrade
	}
}
