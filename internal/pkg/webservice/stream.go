package webservice

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ohowland/holarchy/internal/pkg/msg"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler upgrades to a websocket and pushes every tick and audit event
// as a JSON frame until the client goes away.
func (app *App) StreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Webservice] upgrade:", err)
		return
	}
	defer conn.Close()

	pid := uuid.New()
	ticks, err := app.Sim.Subscribe(pid, msg.Tick)
	if err != nil {
		log.Println("[Webservice] subscribe:", err)
		return
	}
	entries, err := app.Sim.Subscribe(pid, msg.Audit)
	if err != nil {
		log.Println("[Webservice] subscribe:", err)
		app.Sim.Unsubscribe(pid)
		return
	}
	defer app.Sim.Unsubscribe(pid)

	gone := make(chan bool)
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		var m msg.Msg
		var ok bool
		select {
		case m, ok = <-ticks:
		case m, ok = <-entries:
		case <-gone:
			return
		}
		if !ok {
			return
		}
		frame := struct {
			Topic   string      `json:"topic"`
			Payload interface{} `json:"payload"`
		}{m.Topic().String(), m.Payload()}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			log.Println("[Webservice] stream closed:", err)
			return
		}
	}
}
