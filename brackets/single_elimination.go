package brackets

import (
	"errors"
	"fmt"
)

var ErrWrongParticipantCount = errors.New("wrong number of participants for bracket")

type SingleEliminationGenerator struct {
	size int
}

// NewSingleEliminationGenerator returns a generator for brackets of exactly size players.
func NewSingleEliminationGenerator(size int) BracketGenerator {
	return &SingleEliminationGenerator{size: size}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) FirstRound(seeds []string) ([]Pairing, error) {
	if len(seeds) != g.size || g.size < 2 || g.size%2 != 0 {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrWrongParticipantCount, g.size, len(seeds))
	}
	seen := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("duplicate participant %q", s)
		}
		seen[s] = struct{}{}
	}
	return pairUp(seeds), nil
}

func (g *SingleEliminationGenerator) NextRound(completedRound int, winners []string) RoundPlan {
	switch w := len(winners); {
	case w == 1:
		return RoundPlan{Outcome: OutcomeChampion, Champion: winners[0]}
	case w == 2 || w == 4:
		return RoundPlan{Outcome: OutcomeNextRound, Pairings: pairUp(winners)}
	case w == 3 && completedRound == 1:
		// Double forfeit in round one: the third winner advances on a bye.
		pairings := pairUp(winners[:2])
		pairings = append(pairings, Pairing{PlayerA: winners[2]})
		return RoundPlan{Outcome: OutcomeNextRound, Pairings: pairings}
	default:
		return RoundPlan{
			Outcome: OutcomeCancel,
			Reason:  fmt.Sprintf("invalid bracket: %d winners after round %d", w, completedRound),
		}
	}
}

func pairUp(players []string) []Pairing {
	out := make([]Pairing, 0, len(players)/2)
	for i := 0; i+1 < len(players); i += 2 {
		b := players[i+1]
		out = append(out, Pairing{PlayerA: players[i], PlayerB: &b})
	}
	return out
}
