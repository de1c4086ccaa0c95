// Package winner вычисляет победителя месяца.
package winner

import (
	"sort"

	"glaze-bot/internal/domain"
)

// Result описывает победителя месяца и число полученных сообщений.
type Result struct {
	RecipientID domain.MemberID
	Count       int
}

// Compute возвращает получателя с наибольшим числом видимых сообщений за месяц.
// При равенстве побеждает тот, кто раньше всех набрал максимум.
func Compute(subs []domain.Submission, monthKey string) (Result, bool) {
	month := make([]domain.Submission, 0)
	for _, sub := range subs {
		if sub.MonthKey == monthKey && sub.Visible() {
			month = append(month, sub)
		}
	}
	if len(month) == 0 {
		return Result{}, false
	}
	sort.SliceStable(month, func(i, j int) bool {
		return month[i].CreatedAt.Before(month[j].CreatedAt)
	})

	counts := make(map[domain.MemberID]int)
	best := 0
	for _, sub := range month {
		counts[sub.RecipientID]++
		if counts[sub.RecipientID] > best {
			best = counts[sub.RecipientID]
		}
	}

	// первый в хронологии, кто дошёл до best, и есть победитель
	running := make(map[domain.MemberID]int, len(counts))
	for _, sub := range month {
		if counts[sub.RecipientID] != best {
			continue
		}
		running[sub.RecipientID]++
		if running[sub.RecipientID] == best {
			return Result{RecipientID: sub.RecipientID, Count: best}, true
		}
	}
	return Result{}, false
}
