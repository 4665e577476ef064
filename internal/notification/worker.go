package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"maintenance-tracker-backend/internal/model"
	"maintenance-tracker-backend/internal/tracker"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// pushPayload is the JSON body delivered to subscribers.
type pushPayload struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	Category   string `json:"category"`
	Kind       string `json:"kind"`
	MachineID  int64  `json:"machine_id"`
	ScheduleID int64  `json:"schedule_id,omitempty"`
	TicketID   int64  `json:"ticket_id,omitempty"`
	WorkOrder  string `json:"work_order,omitempty"`
}

// WorkerPool fans maintenance events out to the push subscribers of the
// affected machine. It implements tracker.Notifier.
type WorkerPool struct {
	size    int
	jobs    chan tracker.Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan tracker.Event, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case evt := <-wp.jobs:
			wp.sendEventNotifications(ctx, evt)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an event for fan-out.
func (wp *WorkerPool) Dispatch(evt tracker.Event) {
	wp.jobs <- evt
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan tracker.Event {
	return wp.jobs
}

// sendEventNotifications fetches the subscribers of the event's machine and
// pushes the rendered payload to each of them.
func (wp *WorkerPool) sendEventNotifications(ctx context.Context, evt tracker.Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", evt.MachineID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for machine %d: %v", evt.MachineID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(pushPayload{
		Title:      evt.Title,
		Body:       evt.Body,
		Category:   evt.Category,
		Kind:       string(evt.Kind),
		MachineID:  evt.MachineID,
		ScheduleID: evt.ScheduleID,
		TicketID:   evt.TicketID,
		WorkOrder:  evt.WorkOrder,
	})
	if err != nil {
		log.Printf("Error encoding %s payload for machine %d: %v", evt.Kind, evt.MachineID, err)
		return
	}

	log.Printf("Sending %d %s notifications for machine %d", len(subscriptions), evt.Kind, evt.MachineID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
