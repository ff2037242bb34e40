package brackets

// Pairing is one match slot of a generated round. A nil PlayerB marks a bye.
type Pairing struct {
	PlayerA string
	PlayerB *string
}

func (p Pairing) IsBye() bool {
	return p.PlayerB == nil
}

type Outcome int

const (
	OutcomeNextRound Outcome = iota
	OutcomeChampion
	OutcomeCancel
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNextRound:
		return "next_round"
	case OutcomeChampion:
		return "champion"
	case OutcomeCancel:
		return "cancel"
	}
	return "unknown"
}

// RoundPlan is the decision taken once every match of a round is terminal.
type RoundPlan struct {
	Outcome  Outcome
	Champion string
	Pairings []Pairing
	Reason   string
}

type BracketGenerator interface {
	// FirstRound pairs seeds in the given order.
	FirstRound(seeds []string) ([]Pairing, error)
	// NextRound branches on the winners of a completed round, in finishing order.
	NextRound(completedRound int, winners []string) RoundPlan

	GetName() string
}
