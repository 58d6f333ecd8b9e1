package game

// TotalRounds is the number of rounds including the lobby and the review.
func TotalRounds(n int) int { return n + 2 }

func PhaseTypeFor(roundIx, totalRounds int) PhaseType {
    switch {
    case roundIx >= totalRounds-1:
        return PhaseReview
    case roundIx == 1:
        return PhasePrompt
    case roundIx == 0:
        return PhaseLobby
    case roundIx%2 == 0:
        return PhaseDraw
    default:
        return PhaseGuess
    }
}

func PhaseFor(roundIx, n int) Phase {
    return Phase{Index: roundIx, Type: PhaseTypeFor(roundIx, TotalRounds(n))}
}

// ChainForParticipant returns the chain position the participant at pos
// works on during roundIx. For a fixed round it is a bijection over positions.
func ChainForParticipant(pos, roundIx, n int) int {
    return mod(pos+roundIx-1, n)
}

// AuthorPositionForChain inverts ChainForParticipant.
func AuthorPositionForChain(chainPos, roundIx, n int) int {
    return mod(chainPos-roundIx+1+n, n)
}

func mod(a, n int) int {
    r := a % n
    if r < 0 {
        r += n
    }
    return r
}
