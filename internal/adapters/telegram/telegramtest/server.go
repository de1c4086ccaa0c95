// Package telegramtest поднимает поддельный Bot API для тестов.
package telegramtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Token используется поддельным ботом.
const Token = "123:test"

// Call описывает один запрос к Bot API.
type Call struct {
	Method string
	Params url.Values
}

// Member описывает участника группы для getChatMember.
type Member struct {
	Name        string
	Status      string
	CustomTitle string
}

// Server отвечает на методы Bot API, которые использует бот.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	calls   []Call
	members map[int64]Member
	blocked map[int64]bool
	nextID  int
}

// New запускает сервер и закрывает его по окончании теста.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{members: map[int64]Member{}, blocked: map[int64]bool{}, nextID: 100}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Bot создаёт клиента tgbotapi, направленного на сервер.
func (s *Server) Bot(t testing.TB) *tgbotapi.BotAPI {
	t.Helper()
	bot, err := tgbotapi.NewBotAPIWithClient(Token, s.URL+"/bot%s/%s", s.Client())
	if err != nil {
		t.Fatalf("bot api: %v", err)
	}
	return bot
}

// AddMember регистрирует участника группы.
func (s *Server) AddMember(id int64, m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Status == "" {
		m.Status = "member"
	}
	s.members[id] = m
}

// Block заставляет sendMessage в указанный чат возвращать 403.
func (s *Server) Block(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[chatID] = true
}

// Calls возвращает запросы с указанным методом.
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Sent возвращает тексты sendMessage, адресованные chatID.
func (s *Server) Sent(chatID int64) []string {
	var out []string
	for _, c := range s.Calls("sendMessage") {
		if c.Params.Get("chat_id") == strconv.FormatInt(chatID, 10) {
			out = append(out, c.Params.Get("text"))
		}
	}
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	params := url.Values{}
	for k, v := range r.Form {
		params[k] = append([]string(nil), v...)
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Params: params})
	s.mu.Unlock()

	switch method {
	case "getMe":
		writeOK(w, map[string]any{"id": 1, "is_bot": true, "first_name": "Glaze", "username": "glaze_bot"})
	case "sendMessage":
		chatID, _ := strconv.ParseInt(params.Get("chat_id"), 10, 64)
		s.mu.Lock()
		blocked := s.blocked[chatID]
		s.nextID++
		id := s.nextID
		s.mu.Unlock()
		if blocked {
			writeFail(w, http.StatusForbidden, "Forbidden: bot was blocked by the user")
			return
		}
		writeOK(w, map[string]any{
			"message_id": id,
			"date":       0,
			"chat":       map[string]any{"id": chatID, "type": "private"},
			"text":       params.Get("text"),
		})
	case "getChatMember":
		userID, _ := strconv.ParseInt(params.Get("user_id"), 10, 64)
		s.mu.Lock()
		m, ok := s.members[userID]
		s.mu.Unlock()
		if !ok {
			writeFail(w, http.StatusBadRequest, "Bad Request: user not found")
			return
		}
		writeOK(w, map[string]any{
			"status":       m.Status,
			"custom_title": m.CustomTitle,
			"user":         map[string]any{"id": userID, "is_bot": false, "first_name": m.Name},
		})
	case "editMessageReplyMarkup", "editMessageText":
		chatID, _ := strconv.ParseInt(params.Get("chat_id"), 10, 64)
		id, _ := strconv.Atoi(params.Get("message_id"))
		writeOK(w, map[string]any{"message_id": id, "date": 0, "chat": map[string]any{"id": chatID, "type": "supergroup"}})
	case "answerCallbackQuery", "deleteMessage", "setWebhook", "deleteWebhook":
		writeOK(w, true)
	default:
		writeFail(w, http.StatusNotFound, fmt.Sprintf("Not Found: method %s", method))
	}
}

func writeOK(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func writeFail(w http.ResponseWriter, code int, description string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": code, "description": description})
}
