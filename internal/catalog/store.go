package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bellefleur/bellefleur-backend/internal/aws"
)

// Store reads products from the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
	}
}

// productRecord is the persisted shape. Only the payload matching
// pricing_type is stored; the back-office clears the others when the
// pricing type changes.
type productRecord struct {
	ProductID   string    `dynamodbav:"product_id"` // PK
	Name        string    `dynamodbav:"name"`
	Image       string    `dynamodbav:"image,omitempty"`
	IsActive    bool      `dynamodbav:"is_active"`
	PricingType string    `dynamodbav:"pricing_type"`
	Price       float64   `dynamodbav:"price,omitempty"`
	Variants    []Variant `dynamodbav:"variants,omitempty"`
	MinPrice    float64   `dynamodbav:"min_price,omitempty"`
	MaxPrice    float64   `dynamodbav:"max_price,omitempty"`
}

// Get fetches a product by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, productID string) (*Product, error) {
	key := map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: productID},
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec productRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	p, err := rec.toProduct()
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}
	return &p, nil
}

func (r productRecord) toProduct() (Product, error) {
	p := Product{
		ID:       r.ProductID,
		Name:     r.Name,
		Image:    r.Image,
		IsActive: r.IsActive,
	}
	switch r.PricingType {
	case PricingFixed:
		p.Pricing = FixedPricing{Price: r.Price}
	case PricingVariants:
		p.Pricing = VariantPricing{Variants: r.Variants}
	case PricingCustomRange:
		p.Pricing = RangePricing{MinPrice: r.MinPrice, MaxPrice: r.MaxPrice}
	default:
		return Product{}, fmt.Errorf("unknown pricing_type %q: %w", r.PricingType, ErrInvalidProduct)
	}
	return p, nil
}
