package domain

import (
	"math"
	"time"
)

const OrderStatusConfirmed = "confirmed"

type OrderItem struct {
	Name     string  `json:"name" dynamodbav:"name"`
	Quantity int     `json:"quantity" dynamodbav:"quantity"`
	Price    float64 `json:"price" dynamodbav:"price"`
}

// Order is immutable once created.
type Order struct {
	ID             string      `json:"id" dynamodbav:"id"`
	Identity       string      `json:"identity" dynamodbav:"identity"`
	ConversationID string      `json:"conversationId" dynamodbav:"conversationId"`
	Items          []OrderItem `json:"items" dynamodbav:"items"`
	TotalValue     float64     `json:"totalValue" dynamodbav:"totalValue"`
	Address        string      `json:"address" dynamodbav:"address"`
	PaymentMethod  string      `json:"paymentMethod" dynamodbav:"paymentMethod"`
	Status         string      `json:"status" dynamodbav:"status"`
	CreatedAt      time.Time   `json:"createdAt" dynamodbav:"createdAt"`
}

// StagedOrder is an order payload parsed from the model but not committed.
type StagedOrder struct {
	Items         []OrderItem `json:"items" dynamodbav:"items"`
	Address       string      `json:"address" dynamodbav:"address"`
	PaymentMethod string      `json:"paymentMethod" dynamodbav:"paymentMethod"`
	TotalValue    float64     `json:"totalValue" dynamodbav:"totalValue"`
	StagedAt      time.Time   `json:"stagedAt" dynamodbav:"stagedAt"`
}

// ComputeTotal sums price x quantity rounded to cents.
func ComputeTotal(items []OrderItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Price * float64(it.Quantity)
	}
	return math.Round(total*100) / 100
}
