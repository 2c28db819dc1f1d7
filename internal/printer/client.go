// Package printer packages finished orders for the external print vendor
// and records the vendor's verdict on the order.
package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const printDPI = 300

// Payload is the vendor order envelope.
type Payload struct {
	SourceAppID string     `json:"source_app_id"`
	OrderID     string     `json:"order_id"`
	OrderNo     string     `json:"order_no"`
	ShopID      string     `json:"shop_id"`
	ShopName    string     `json:"shop_name"`
	Receiver    Receiver   `json:"shipping_receiver"`
	SubOrders   []SubOrder `json:"sub_orders"`
}

type Receiver struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type SubOrder struct {
	SubOrderID string  `json:"sub_order_id"`
	ProductID  string  `json:"product_id"`
	Photos     []Photo `json:"photos"`
}

type Photo struct {
	FileName string  `json:"file_name"`
	FileURL  string  `json:"file_url"`
	WidthCM  float64 `json:"width_cm"`
	HeightCM float64 `json:"height_cm"`
	WidthPix int     `json:"width_pix"`
	HeightPix int    `json:"height_pix"`
	DPI      int     `json:"dpi"`
}

// Result is the vendor's response. Success false with a message is a
// business rejection; transport errors are reported as Go errors.
type Result struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	VendorJobID string `json:"vendor_job_id"`
}

type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Send posts the payload and decodes the vendor verdict.
func (c *Client) Send(ctx context.Context, p *Payload) (*Result, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("printer endpoint is not configured")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode printer payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("printer request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("printer returned %d: %s", resp.StatusCode, raw)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unreadable printer response: %w", err)
	}
	return &result, nil
}

// CMToPixels converts a physical print dimension to pixels at the vendor's
// required DPI.
func CMToPixels(cm float64) int {
	const inchPerCM = 1.0 / 2.54
	return int(cm*inchPerCM*printDPI + 0.5)
}
