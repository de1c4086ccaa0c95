package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"glaze-bot/internal/domain"
)

func TestCompute(t *testing.T) {
	doc := domain.DefaultDocument()
	doc.Wins = map[domain.MemberID]int{"a": 1, "b": 3, "c": 1, "d": 2, "e": 1, "f": 1, "zero": 0}
	for _, s := range []struct {
		sender domain.MemberID
		status domain.ApprovalStatus
		del    bool
	}{
		{"x", domain.ApprovalApproved, false},
		{"x", domain.ApprovalApproved, false},
		{"y", domain.ApprovalApproved, false},
		{"y", domain.ApprovalPending, false},
		{"y", domain.ApprovalApproved, true},
		{"z", domain.ApprovalDeclined, true},
	} {
		doc.Submissions = append(doc.Submissions, domain.Submission{SenderID: s.sender, ApprovalStatus: s.status, Deleted: s.del})
	}

	board := Compute(doc)
	assert.Equal(t, []Entry{{"b", 3}, {"d", 2}, {"a", 1}, {"c", 1}, {"e", 1}}, board.Wins)
	assert.Equal(t, []Entry{{"x", 2}, {"y", 1}}, board.Senders)
}

func TestComputeEmpty(t *testing.T) {
	board := Compute(domain.DefaultDocument())
	assert.Empty(t, board.Wins)
	assert.Empty(t, board.Senders)
}
