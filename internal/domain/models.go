package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type Bucket string

const (
	BucketOrders       Bucket = "orders"
	BucketProducts     Bucket = "products"
	BucketSales        Bucket = "sales"
	BucketSettings     Bucket = "settings"
	BucketTransactions Bucket = "transactions"
)

// Buckets lists every bucket a tenant owns, in bootstrap order.
var Buckets = []Bucket{BucketSettings, BucketProducts, BucketSales, BucketOrders, BucketTransactions}

func ParseBucket(raw string) (Bucket, bool) {
	candidate := Bucket(strings.ToLower(strings.TrimSpace(raw)))
	for _, b := range Buckets {
		if b == candidate {
			return b, true
		}
	}
	return "", false
}

// BucketDocument is one whole-document bucket value scoped to a tenant.
// Data is kept raw so the stores never need to understand bucket contents.
type BucketDocument struct {
	TenantID  string          `json:"tenantId"`
	Bucket    Bucket          `json:"store"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Tenant struct {
	ID                string     `json:"id"`
	StoreName         string     `json:"storeName"`
	AdminUsername     string     `json:"adminUsername"`
	AdminPasswordHash string     `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	DeletedAt         *time.Time `json:"deletedAt,omitempty"`
}

func (t Tenant) Active() bool {
	return t.DeletedAt == nil
}

const (
	RoleAdmin    = "admin"
	RoleSuper    = "super"
	RoleVendedor = "vendedor"
	RoleTecnico  = "tecnico"
)

// UserAccount is a row of the remote user registry.
type UserAccount struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	TenantID     string    `json:"tenantId"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Product struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	CostPrice float64 `json:"costPrice"`
	SalePrice float64 `json:"salePrice"`
	Quantity  int     `json:"quantity"`
	Photo     string  `json:"photo,omitempty"`
}

type Sale struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	ProductName   string    `json:"productName"`
	Date          time.Time `json:"date"`
	Quantity      int       `json:"quantity"`
	OriginalPrice float64   `json:"originalPrice"`
	Discount      float64   `json:"discount"`
	FinalPrice    float64   `json:"finalPrice"`
	CostAtSale    float64   `json:"costAtSale"`
	PaymentMethod string    `json:"paymentMethod"`
	SellerName    string    `json:"sellerName"`
	TransactionID string    `json:"transactionId"`
}

type EntryType string

const (
	EntryIncome  EntryType = "entrada"
	EntryExpense EntryType = "saida"
)

// Transaction is a manual ledger entry. It never touches inventory.
type Transaction struct {
	ID            string    `json:"id"`
	Type          EntryType `json:"type"`
	Description   string    `json:"description"`
	Amount        float64   `json:"amount"`
	Date          time.Time `json:"date"`
	Category      string    `json:"category"`
	PaymentMethod string    `json:"paymentMethod"`
}

const (
	OrderPending   = "Pendente"
	OrderCompleted = "Concluído"
	OrderDelivered = "Entregue"
)

type ServiceOrder struct {
	ID             string    `json:"id"`
	CustomerName   string    `json:"customerName"`
	PhoneNumber    string    `json:"phoneNumber"`
	Address        string    `json:"address"`
	DeviceBrand    string    `json:"deviceBrand"`
	DeviceModel    string    `json:"deviceModel"`
	Defect         string    `json:"defect"`
	RepairDetails  string    `json:"repairDetails"`
	PartsCost      float64   `json:"partsCost"`
	ServiceCost    float64   `json:"serviceCost"`
	Total          float64   `json:"total"`
	Status         string    `json:"status"`
	Photos         []string  `json:"photos"`
	FinishedPhotos []string  `json:"finishedPhotos"`
	CreatedAt      time.Time `json:"createdAt"`
}

type StoreUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Photo string `json:"photo,omitempty"`
}

type Settings struct {
	StoreName       string      `json:"storeName"`
	LogoURL         *string     `json:"logoUrl"`
	Users           []StoreUser `json:"users"`
	IsConfigured    bool        `json:"isConfigured"`
	PDFWarrantyText string      `json:"pdfWarrantyText"`
	PDFFontSize     int         `json:"pdfFontSize"`
	PDFFontFamily   string      `json:"pdfFontFamily"`
	PDFPaperWidth   int         `json:"pdfPaperWidth"`
	PDFTextColor    string      `json:"pdfTextColor"`
	PDFBgColor      string      `json:"pdfBgColor"`
}

// DefaultSettings is the document synthesized for a tenant that has no
// settings bucket locally or remotely.
func DefaultSettings() Settings {
	return Settings{
		StoreName:       "Nova Assistência",
		LogoURL:         nil,
		Users:           []StoreUser{},
		IsConfigured:    true,
		PDFWarrantyText: "Garantia de 90 dias...",
		PDFFontSize:     8,
		PDFFontFamily:   "helvetica",
		PDFPaperWidth:   80,
		PDFTextColor:    "#000000",
		PDFBgColor:      "#FFFFFF",
	}
}

const (
	PaymentCash   = "Dinheiro"
	PaymentCredit = "Cartão de Crédito"
	PaymentDebit  = "Cartão de Débito"
	PaymentPIX    = "PIX"
)

func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCredit, PaymentDebit, PaymentPIX:
		return true
	default:
		return false
	}
}

// Actor is the authenticated caller attached to a request context.
type Actor struct {
	Username string
	Role     string
	TenantID string
}

func (a Actor) IsSuper() bool {
	return a.Role == RoleSuper
}

type LoginRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

type LoginResponse struct {
	Success   bool    `json:"success"`
	Type      string  `json:"type,omitempty"`
	Tenant    *Tenant `json:"tenant,omitempty"`
	Token     string  `json:"token,omitempty"`
	ExpiresAt string  `json:"expiresAt,omitempty"`
	Message   string  `json:"message,omitempty"`
}

type SyncPushRequest struct {
	TenantID  string          `json:"tenantId"`
	Store     string          `json:"store"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

type SyncPushResponse struct {
	Success   bool   `json:"success"`
	Applied   bool   `json:"applied"`
	UpdatedAt string `json:"updatedAt"`
}

type ProvisionRequest struct {
	StoreName string `json:"storeName"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// OutboxIntent is a write-ahead record of a local bucket write that still has
// to reach the remote store.
type OutboxIntent struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	Bucket        Bucket          `json:"store"`
	Data          json.RawMessage `json:"data"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	LastError     string          `json:"lastError,omitempty"`
}
