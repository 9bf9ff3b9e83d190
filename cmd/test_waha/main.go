package main

import (
	"context"
	"flag"
	"log"

	"siakad_payment_echo/internal/config"
	"siakad_payment_echo/internal/services"
)

func main() {
	phone := flag.String("phone", "", "Phone number or group chat id (e.g. 628123456789, 120363@g.us)")
	msg := flag.String("msg", "Test message from the tuition payment service", "Message body")
	flag.Parse()

	if *phone == "" {
		log.Fatal("Please provide a phone number using -phone flag")
	}

	cfg := config.Load()
	service := services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey)

	chatID := services.NormalizeChatID(*phone)
	log.Printf("Sending message to %s: %s", chatID, *msg)

	if err := service.SendMessage(context.Background(), chatID, *msg); err != nil {
		log.Fatalf("Failed to send message: %v", err)
	}

	log.Println("Message sent successfully!")
}
