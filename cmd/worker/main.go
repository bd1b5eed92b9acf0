package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/bellefleur/bellefleur-backend/internal/aws"
	"github.com/bellefleur/bellefleur-backend/internal/notify"
)

func main() {
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	mailer := notify.NewMailer(
		os.Getenv("SENDGRID_API_KEY"),
		os.Getenv("MAIL_FROM"),
		os.Getenv("ADMIN_EMAIL"),
	)

	p := NewProcessor(clients, os.Getenv("ORDERS_TABLE"), os.Getenv("PAYMENT_REFS_TABLE"), mailer)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"type":"payment_confirmed","order_id":"local-order-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
