package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, Percentage(0, 0))
	assert.Equal(t, 0, Percentage(5, 0), "zero total yields zero for any vote count")
	assert.Equal(t, 100, Percentage(7, 7))
	assert.Equal(t, 50, Percentage(1, 2))
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 17, Percentage(1, 6), "16.67 rounds up")
	assert.Equal(t, 13, Percentage(1, 8), "12.5 rounds half up")
}

func TestPercentageBounds(t *testing.T) {
	for total := 1; total <= 40; total++ {
		for votes := 0; votes <= total; votes++ {
			p := Percentage(votes, total)
			require.GreaterOrEqual(t, p, 0, "votes=%d total=%d", votes, total)
			require.LessOrEqual(t, p, 100, "votes=%d total=%d", votes, total)
		}
		require.Equal(t, 100, Percentage(total, total))
	}
}

func question(title string, total int, votes ...int) Question {
	q := Question{Title: title, TotalVotes: total}
	for _, v := range votes {
		q.Options = append(q.Options, Option{Text: title, Votes: v})
	}
	return q
}

func TestLeaderboard(t *testing.T) {
	input := []Question{
		question("a", 3),
		question("b", 0),
		question("c", 9),
		question("d", 3),
	}
	top := Leaderboard(input)
	require.Len(t, top, 3)
	assert.Equal(t, "c", top[0].Title)
	assert.Equal(t, "a", top[1].Title, "ties keep original relative order")
	assert.Equal(t, "d", top[2].Title)
}

func TestLeaderboardCapsAtTen(t *testing.T) {
	var input []Question
	for i := 0; i < 25; i++ {
		input = append(input, question("q", i+1))
	}
	top := Leaderboard(input)
	require.Len(t, top, LeaderboardSize)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].TotalVotes, top[i].TotalVotes)
	}
}

func TestLeaderboardExcludesZeroVotes(t *testing.T) {
	top := Leaderboard([]Question{question("a", 0), question("b", 0)})
	assert.Empty(t, top)
}

func TestTopOption(t *testing.T) {
	q := Question{Options: []Option{
		{Text: "first", Votes: 2},
		{Text: "second", Votes: 5},
		{Text: "third", Votes: 5},
	}}
	top, ok := q.TopOption()
	require.True(t, ok)
	assert.Equal(t, "second", top.Text, "earliest option wins a tie")

	_, ok = Question{}.TopOption()
	assert.False(t, ok)
}

func TestHasVoted(t *testing.T) {
	q := Question{Options: []Option{
		{Text: "a", Votes: 1, VotedUsers: []string{"s1"}},
		{Text: "b", Votes: 1, VotedUsers: []string{"s2"}},
	}}
	assert.True(t, q.HasVoted("s1"))
	assert.True(t, q.HasVoted("s2"))
	assert.False(t, q.HasVoted("s3"))
}

func TestResultsProjection(t *testing.T) {
	q := Question{Title: "pick", TotalVotes: 3, Options: []Option{
		{Text: "a", Votes: 1},
		{Text: "b", Votes: 1},
		{Text: "c", Votes: 1},
	}}
	res := q.Results()
	assert.Equal(t, "pick", res.Title)
	assert.Equal(t, 3, res.TotalVotes)
	require.Len(t, res.Options, 3)
	// independent rounding: 33+33+33 != 100 is accepted
	for _, opt := range res.Options {
		assert.Equal(t, 33, opt.Percentage)
	}
}

func TestResultsZeroVotes(t *testing.T) {
	q := Question{Title: "pick", Options: []Option{{Text: "a"}, {Text: "b"}}}
	res := q.Results()
	for _, opt := range res.Options {
		assert.Equal(t, 0, opt.Percentage)
	}
}
