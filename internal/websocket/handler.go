package websocket

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rajivgeraev/unicircle-api/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Источник проверяется JWT-токеном, а не Origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler возвращает HTTP-обработчик апгрейда WebSocket соединений.
// Токен передаётся параметром запроса: /ws?token=<jwt>
func Handler(manager *Manager, jwtService *utils.JWTService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		userID, err := jwtService.ExtractUserID(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if _, err := uuid.Parse(userID); err != nil {
			http.Error(w, "invalid user id", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Ошибка апгрейда WebSocket: %v", err)
			return
		}

		client := NewClient(userID, conn, manager)
		client.Start()
	}
}
