package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/abgdnv/gomarketplace/pkg/messaging"
)

// CartItem is the wire representation of a cart line inside CartUpdatedEvent.
type CartItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// CartUpdatedEvent carries the full cart published after a mutation.
type CartUpdatedEvent struct {
	Generation uint64     `json:"generation"`
	Items      []CartItem `json:"items"`
	TotalItems int        `json:"total_items"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (e CartUpdatedEvent) Subject() string {
	return messaging.CartUpdatedSubject
}

func (e CartUpdatedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// MsgID identifies one cart change. The timestamp keeps IDs unique when generations restart with the process.
func (e CartUpdatedEvent) MsgID() string {
	return "cart-" + strconv.FormatUint(e.Generation, 10) + "-" + strconv.FormatInt(e.UpdatedAt.UnixNano(), 10)
}
