package notify

import (
	"net/url"
	"time"

	"storefront-core/internal/model"
)

// Fallback strings when neither payload section carries title or body.
const (
	fallbackTitle = "New notification"
	fallbackBody  = "You have a new notification"
)

// Normalize converts a vendor push envelope into a NotificationRecord.
// Title precedence: notification.title, then data.title. Body
// precedence: notification.body, then data.message. The image comes
// only from data.image and only when it is an absolute URL.
func Normalize(raw RawMessage, source model.NotificationSource, receivedAt time.Time) model.NotificationRecord {
	record := model.NotificationRecord{
		Title:      fallbackTitle,
		Body:       fallbackBody,
		Data:       copyData(raw.Data),
		ReceivedAt: receivedAt,
		Source:     source,
	}

	if v := raw.Data["title"]; v != "" {
		record.Title = v
	}
	if raw.Notification != nil && raw.Notification.Title != "" {
		record.Title = raw.Notification.Title
	}

	if v := raw.Data["message"]; v != "" {
		record.Body = v
	}
	if raw.Notification != nil && raw.Notification.Body != "" {
		record.Body = raw.Notification.Body
	}

	if image := raw.Data["image"]; isAbsoluteURL(image) {
		record.ImageURL = image
	}

	return record
}

// copyData detaches the record from the SDK-owned map so records stay
// immutable after creation.
func copyData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func isAbsoluteURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}
