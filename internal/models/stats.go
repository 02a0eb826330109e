package models

import "sort"

// LeaderboardSize caps how many questions a leaderboard shows.
const LeaderboardSize = 10

// Percentage returns votes as a share of total, rounded half-up to the
// nearest integer. A total of zero yields zero for every option.
func Percentage(votes, total int) int {
	if total <= 0 {
		return 0
	}
	return (votes*100*2 + total) / (total * 2)
}

// Leaderboard returns the most-voted questions: zero-vote questions are
// dropped, the rest are sorted descending by total votes (ties keep their
// original relative order) and capped at LeaderboardSize.
func Leaderboard(questions []Question) []Question {
	ranked := make([]Question, 0, len(questions))
	for _, q := range questions {
		if q.TotalVotes > 0 {
			ranked = append(ranked, q)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalVotes > ranked[j].TotalVotes
	})
	if len(ranked) > LeaderboardSize {
		ranked = ranked[:LeaderboardSize]
	}
	return ranked
}

// TopOption returns the option with the highest vote count. On a tie the
// earliest option wins. Returns false when the question has no options.
func (q Question) TopOption() (Option, bool) {
	if len(q.Options) == 0 {
		return Option{}, false
	}
	top := q.Options[0]
	for _, opt := range q.Options[1:] {
		if opt.Votes > top.Votes {
			top = opt
		}
	}
	return top, true
}

// HasVoted reports whether the voter appears in any option's voter set.
func (q Question) HasVoted(voterID string) bool {
	for _, opt := range q.Options {
		for _, id := range opt.VotedUsers {
			if id == voterID {
				return true
			}
		}
	}
	return false
}

// Results projects the question into its aggregated read-only view.
// Percentages are rounded per option independently, so they may not sum
// to exactly 100.
func (q Question) Results() QuestionResults {
	res := QuestionResults{
		QuestionID: q.ID,
		Title:      q.Title,
		TotalVotes: q.TotalVotes,
		Options:    make([]OptionResult, len(q.Options)),
	}
	for i, opt := range q.Options {
		res.Options[i] = OptionResult{
			Text:       opt.Text,
			Votes:      opt.Votes,
			Percentage: Percentage(opt.Votes, q.TotalVotes),
		}
	}
	return res
}
