package services

import (
	"log"
	"sync"
	"time"
)

// Notifier receives user-visible status messages.
type Notifier interface {
	Notify(message string, isError bool)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string, isError bool)

func (f NotifierFunc) Notify(message string, isError bool) { f(message, isError) }

type Notification struct {
	Message string    `json:"message"`
	IsError bool      `json:"isError"`
	Time    time.Time `json:"time"`
}

// NotificationLog logs every notification and keeps the most recent ones
// for a UI to poll.
type NotificationLog struct {
	mu    sync.Mutex
	limit int
	items []Notification
	now   func() time.Time
}

func NewNotificationLog(limit int) *NotificationLog {
	if limit <= 0 {
		limit = 50
	}
	return &NotificationLog{limit: limit, now: time.Now}
}

func (n *NotificationLog) Notify(message string, isError bool) {
	if isError {
		log.Printf("Notification (error): %s", message)
	} else {
		log.Printf("Notification: %s", message)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, Notification{Message: message, IsError: isError, Time: n.now()})
	if over := len(n.items) - n.limit; over > 0 {
		n.items = append([]Notification(nil), n.items[over:]...)
	}
}

// Recent returns the kept notifications, oldest first.
func (n *NotificationLog) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.items))
	copy(out, n.items)
	return out
}
