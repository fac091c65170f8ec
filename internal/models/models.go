package models

import "time"

type MembershipTier string

const (
	MembershipNone   MembershipTier = "none"
	MembershipFormer MembershipTier = "former"
	MembershipActive MembershipTier = "active"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderProcessing, OrderShipped, OrderCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status change is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderShipped || s == OrderCancelled
}

type User struct {
	ID               string
	Email            string
	Credits          int
	MembershipTier   *MembershipTier
	MembershipExpiry *int64 // unix milliseconds
	LastGrantedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Session struct {
	Token       string
	UserID      string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}

type ImageMetadata struct {
	ID           int64
	UserID       string
	Prompt       string
	ImageURL     string
	StorageURL   string
	Seed         int64
	Width        int
	Height       int
	ContentType  string
	HasNsfwFlags []bool
	FullResult   string
	CreatedAt    time.Time
}

type Order struct {
	ID               string
	UserID           string
	Status           OrderStatus
	PaymentSessionID string
	TotalCents       int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type PrintOptions struct {
	ID              int64
	OrderID         string
	ImageMetadataID *int64
	ImageName       string
	ImageSrc        string
	Size            string
	Quantity        int
	UnitPriceCents  int
}

// OrderDetail is an order joined with its image and print options,
// the shape the orders listing endpoint returns.
type OrderDetail struct {
	Order        Order
	Prompt       string
	ImageURL     string
	PrintOptions []PrintOptions
}
