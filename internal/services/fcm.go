// Package services holds outbound integrations.
package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"fireway-backend/internal/models"
)

// FCMService sends push notifications through Firebase Cloud Messaging.
// It implements dispatch.Notifier.
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates a new FCM service instance from a credentials file
func NewFCMService(credentialsFile string) (*FCMService, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// NewFCMServiceFromBase64 creates a new FCM service instance from base64-encoded
// credentials. Useful for cloud deployments where you can't upload files.
func NewFCMServiceFromBase64(credentialsBase64 string) (*FCMService, error) {
	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}

	ctx := context.Background()
	opt := option.WithCredentialsJSON(credentialsJSON)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// NotifyOrderAvailable pushes a new-order alert to an on-duty driver.
func (s *FCMService) NotifyOrderAvailable(user models.User, order models.Order) {
	if user.FCMToken == nil || *user.FCMToken == "" {
		return
	}

	ctx := context.Background()
	message := &messaging.Message{
		Token: *user.FCMToken,
		Notification: &messaging.Notification{
			Title: "New Order Available!",
			Body:  fmt.Sprintf("Delivery to %s. Open the app to claim it.", order.CustomerAddress),
		},
		Data: map[string]string{
			"type":     "order_available",
			"order_id": order.ID,
			"platform": order.Platform,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		log.Printf("fcm: failed to notify driver %s: %v", user.ID, err)
		return
	}
	log.Printf("fcm: order notification sent: %s", response)
}
