package pdf

import "context"

// Renderer produces PDF documents attached to customer emails.
type Renderer interface {
	RenderReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type Config struct {
	SellerName    string
	SellerAddress string
	SellerEmail   string
}

type MarotoRenderer struct {
	cfg Config
}

func New(cfg Config) *MarotoRenderer {
	return &MarotoRenderer{cfg: cfg}
}

var _ Renderer = (*MarotoRenderer)(nil)
