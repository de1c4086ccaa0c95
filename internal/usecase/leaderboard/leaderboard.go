// Package leaderboard считает таблицу лидеров по победам и отправленным сообщениям.
package leaderboard

import (
	"context"
	"fmt"
	"sort"

	"glaze-bot/internal/domain"
)

// Size ограничивает число строк в каждой таблице.
const Size = 5

// Entry описывает одну строку таблицы.
type Entry struct {
	MemberID domain.MemberID `json:"member_id"`
	Count    int             `json:"count"`
}

// Board содержит обе таблицы лидеров.
type Board struct {
	Wins    []Entry `json:"wins"`
	Senders []Entry `json:"senders"`
}

// Compute строит таблицы по документу. Равные значения упорядочены по идентификатору участника.
func Compute(doc *domain.Document) Board {
	senders := make(map[domain.MemberID]int)
	for _, sub := range doc.Submissions {
		if sub.Visible() {
			senders[sub.SenderID]++
		}
	}
	return Board{Wins: top(doc.Wins), Senders: top(senders)}
}

func top(counts map[domain.MemberID]int) []Entry {
	out := make([]Entry, 0, len(counts))
	for id, n := range counts {
		if n > 0 {
			out = append(out, Entry{MemberID: id, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].MemberID < out[j].MemberID
	})
	if len(out) > Size {
		out = out[:Size]
	}
	return out
}

// Service читает документ и строит таблицы.
type Service struct {
	store domain.DocumentStore
}

// NewService создаёт сервис.
func NewService(st domain.DocumentStore) *Service {
	return &Service{store: st}
}

// Get возвращает текущие таблицы лидеров.
func (s *Service) Get(ctx context.Context) (Board, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return Board{}, fmt.Errorf("загрузка документа: %w", err)
	}
	return Compute(doc), nil
}
