package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"donation-api/internal/currency"
	"donation-api/internal/models"
)

type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// DonationAlert is pushed to every connected widget when a donation succeeds.
type DonationAlert struct {
	DonationID int64           `json:"donation_id"`
	DonorName  string          `json:"donor_name"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Display    string          `json:"display"`
	Provider   string          `json:"provider"`
	At         time.Time       `json:"at"`
}

// Hub fans succeeded donations out to every connected feed client. All map
// access happens on the Run goroutine.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan DonationAlert

	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan DonationAlert, 64),
		done:       make(chan struct{}),
	}
}

// Join registers client with the running hub. It reports false once the hub
// has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters client. After the hub stops it returns immediately.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Publish queues an alert for d. It never blocks the caller; when the queue
// is full the alert is dropped.
func (h *Hub) Publish(d models.Donation) {
	donor := d.DonorName
	if donor == "" {
		donor = "Anonymous"
	}
	alert := DonationAlert{
		DonationID: d.ID,
		DonorName:  donor,
		Amount:     d.Amount,
		Currency:   d.Currency,
		Display:    currency.Format(d.Amount, d.Currency),
		Provider:   d.PaymentProvider,
		At:         d.UpdatedAt,
	}
	select {
	case h.Broadcast <- alert:
	default:
		log.Printf("[feed] queue full, dropping alert for donation %d", d.ID)
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.Clients {
				close(client.Send)
				delete(h.Clients, client)
			}
			return

		case client := <-h.Register:
			h.Clients[client] = true
			log.Printf("[feed] client connected (%d total)", len(h.Clients))

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
				log.Printf("[feed] client disconnected (%d total)", len(h.Clients))
			}

		case alert := <-h.Broadcast:
			jsonData, err := json.Marshal(alert)
			if err != nil {
				log.Println("[feed] failed to marshal donation alert:", err)
				continue
			}
			for client := range h.Clients {
				select {
				case client.Send <- jsonData:
				default:
					close(client.Send)
					delete(h.Clients, client)
				}
			}
		}
	}
}
