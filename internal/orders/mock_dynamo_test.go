package orders

import (
	"context"
	"errors"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory stand-in for the DynamoDB operations the
// Store uses. It understands just the expressions this package writes.
// Items are stored per table: table -> pkValue -> item map.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

// itemPK picks the primary key per table: orders are keyed by order_id,
// payment ref claims by the intent id. Claim items carry both attributes
// so the table decides, not the item shape.
func itemPK(table string, attrs map[string]types.AttributeValue) (string, string, error) {
	keyAttr := "order_id"
	if table == testRefsTable {
		keyAttr = "stripe_payment_intent_id"
	}
	if v, ok := attrs[keyAttr]; ok {
		return keyAttr, v.(*types.AttributeValueMemberS).Value, nil
	}
	return "", "", errors.New("no primary key attribute")
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	_, pk, err := itemPK(table, params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && strings.HasPrefix(*params.ConditionExpression, "attribute_not_exists") {
		if _, exists := m.tables[table][pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.tables[table][pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	_, pk, err := itemPK(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func attrString(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	_, pk, err := itemPK(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := m.tables[table][pk]
	if !exists {
		return nil, errors.New("item not found")
	}

	// conditions used by the store
	if params.ConditionExpression != nil {
		switch *params.ConditionExpression {
		case "payment_status = :pending":
			expected := params.ExpressionAttributeValues[":pending"].(*types.AttributeValueMemberS).Value
			if attrString(item, "payment_status") != expected {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case "#s = :expected":
			expected := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS).Value
			if attrString(item, "status") != expected {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}

	expr := *params.UpdateExpression
	vals := params.ExpressionAttributeValues

	if strings.Contains(expr, "#s = :new") {
		item["status"] = vals[":new"]
	}
	if strings.Contains(expr, "payment_status = :paid") {
		item["payment_status"] = vals[":paid"]
	}
	if strings.Contains(expr, "payment_status = :ps") {
		item["payment_status"] = vals[":ps"]
	}
	if strings.Contains(expr, "updated_at = :ua") {
		item["updated_at"] = vals[":ua"]
	}
	for _, attr := range []string{"confirmed_at", "ready_at", "delivered_at", "cancelled_at"} {
		if strings.Contains(expr, attr+" = if_not_exists("+attr+", :ts)") {
			if _, set := item[attr]; !set {
				item[attr] = vals[":ts"]
			}
		}
	}
	if strings.Contains(expr, "timeline = list_append") {
		entry := vals[":entry"].(*types.AttributeValueMemberL)
		var existing []types.AttributeValue
		if l, ok := item["timeline"].(*types.AttributeValueMemberL); ok {
			existing = l.Value
		}
		item["timeline"] = &types.AttributeValueMemberL{Value: append(existing, entry.Value...)}
	}

	m.tables[table][pk] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	// only the order_number GSI lookup is supported
	if params.KeyConditionExpression == nil || *params.KeyConditionExpression != "order_number = :n" {
		return nil, errors.New("unsupported query")
	}
	want := params.ExpressionAttributeValues[":n"].(*types.AttributeValueMemberS).Value
	out := &dyn.QueryOutput{}
	for _, item := range m.tables[table] {
		if attrString(item, "order_number") == want {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// first pass: check conditions
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		_, pk, err := itemPK(*p.TableName, p.Item)
		if err != nil {
			return nil, err
		}
		if p.ConditionExpression != nil && strings.HasPrefix(*p.ConditionExpression, "attribute_not_exists") {
			m.ensureTable(*p.TableName)
			if _, exists := m.tables[*p.TableName][pk]; exists {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	// second pass: apply puts
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		_, pk, _ := itemPK(*p.TableName, p.Item)
		m.ensureTable(*p.TableName)
		m.tables[*p.TableName][pk] = p.Item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
