package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const wahaSession = "default"

// WahaService delivers WhatsApp messages through a WAHA instance
type WahaService struct {
	client *resty.Client
	pause  func(time.Duration)
}

func NewWahaService(baseURL, apiKey string) *WahaService {
	if baseURL == "" {
		baseURL = "http://waha:3000"
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Api-Key", apiKey).
		SetTimeout(15 * time.Second)
	return &WahaService{client: client, pause: time.Sleep}
}

func (s *WahaService) post(ctx context.Context, endpoint string, payload map[string]string) error {
	payload["session"] = wahaSession
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// NormalizeChatID normalizes WhatsApp chat IDs by adding required suffixes and standardizing country codes
func NormalizeChatID(chatId string) string {
	chatId = strings.TrimSpace(chatId)

	if strings.HasSuffix(chatId, "@g.us") {
		return chatId
	}

	chatId = strings.TrimSuffix(chatId, "@c.us")
	chatId = strings.TrimPrefix(chatId, "+")

	// Indonesian numbers starting with '0' become '62'
	if strings.HasPrefix(chatId, "0") {
		chatId = "62" + strings.TrimPrefix(chatId, "0")
	}

	return chatId + "@c.us"
}

// SendMessage sends a message the way a person would (seen, typing, stop typing, send)
func (s *WahaService) SendMessage(ctx context.Context, chatId, text string) error {
	chatId = NormalizeChatID(chatId)

	steps := []struct {
		endpoint string
		payload  map[string]string
		wait     time.Duration
	}{
		{"/api/sendSeen", map[string]string{"chatId": chatId}, 100 * time.Millisecond},
		{"/api/startTyping", map[string]string{"chatId": chatId}, 150 * time.Millisecond},
		{"/api/stopTyping", map[string]string{"chatId": chatId}, 50 * time.Millisecond},
		{"/api/sendText", map[string]string{"chatId": chatId, "text": text}, 0},
	}
	for _, step := range steps {
		if err := s.post(ctx, step.endpoint, step.payload); err != nil {
			return fmt.Errorf("%s: %w", strings.TrimPrefix(step.endpoint, "/api/"), err)
		}
		if step.wait > 0 {
			s.pause(step.wait)
		}
	}
	return nil
}
