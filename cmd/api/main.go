package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/bellefleur/bellefleur-backend/internal/aws"
	"github.com/bellefleur/bellefleur-backend/internal/cart"
	"github.com/bellefleur/bellefleur-backend/internal/catalog"
	"github.com/bellefleur/bellefleur-backend/internal/handlers"
	"github.com/bellefleur/bellefleur-backend/internal/orders"
	"github.com/bellefleur/bellefleur-backend/internal/payments"
	"github.com/gin-gonic/gin"
)

func setupRouter(deps appDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterCartRoutes(r, deps.products, deps.carts, deps.cartService)
	handlers.RegisterOrdersRoutes(r, deps.orders, deps.publisher)
	handlers.RegisterPaymentsRoutes(r, deps.coordinator, deps.webhookSecret)

	return r
}

type appDeps struct {
	products      *catalog.Store
	carts         *cart.Store
	cartService   *cart.Service
	orders        *orders.Store
	publisher     *aws.Publisher
	coordinator   *payments.Coordinator
	webhookSecret string
}

func main() {
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	carts, err := cart.NewStore(os.Getenv("REDIS_URL"))
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}

	products := catalog.NewStore(clients.DynamoDB, os.Getenv("PRODUCTS_TABLE"))
	ordersStore := orders.NewStore(clients.DynamoDB, os.Getenv("ORDERS_TABLE"), os.Getenv("PAYMENT_REFS_TABLE"))
	publisher := aws.NewPublisher(clients.SQS, os.Getenv("NOTIFICATIONS_QUEUE_URL"))
	metrics := aws.NewMetrics(clients.CloudWatch)
	gateway := payments.NewStripeClient(os.Getenv("STRIPE_SECRET_KEY"))

	deps := appDeps{
		products:      products,
		carts:         carts,
		cartService:   cart.NewService(products, carts),
		orders:        ordersStore,
		publisher:     publisher,
		coordinator:   payments.NewCoordinator(ordersStore, carts, gateway, publisher, metrics),
		webhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
	}

	r := setupRouter(deps)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
