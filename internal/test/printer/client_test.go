package printer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photoprint-backend/internal/printer"
)

func samplePayload() *printer.Payload {
	return &printer.Payload{
		SourceAppID: "photoprint",
		OrderID:     "YT_42",
		OrderNo:     "PP20260828120000-0042",
		ShopID:      "shop-9",
		ShopName:    "City Studio",
		Receiver: printer.Receiver{
			Name:    "张三",
			Phone:   "13812345678",
			Address: "北京市朝阳区",
		},
		SubOrders: []printer.SubOrder{{
			SubOrderID: "PP20260828120000-0042_1",
			ProductID:  "12",
			Photos: []printer.Photo{{
				FileName:  "PP20260828120000-0042_effect_20260828_120500_1_a.jpg",
				FileURL:   "http://backend/public/hd/PP20260828120000-0042_effect_20260828_120500_1_a.jpg",
				WidthCM:   15.2,
				HeightCM:  10.2,
				WidthPix:  printer.CMToPixels(15.2),
				HeightPix: printer.CMToPixels(10.2),
				DPI:       300,
			}},
		}},
	}
}

func TestClient_Send(t *testing.T) {
	var got map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"success":true,"message":"accepted","vendor_job_id":"vj-100"}`)
	}))
	defer server.Close()

	client := printer.NewClient(server.URL)
	result, err := client.Send(context.Background(), samplePayload())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "vj-100", result.VendorJobID)

	// Vendor contract field names.
	for _, key := range []string{"source_app_id", "order_id", "order_no", "shop_id", "shop_name", "shipping_receiver", "sub_orders"} {
		assert.Contains(t, got, key)
	}
	assert.JSONEq(t, `"YT_42"`, string(got["order_id"]))

	var subs []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(got["sub_orders"], &subs))
	require.Len(t, subs, 1)
	assert.JSONEq(t, `"PP20260828120000-0042_1"`, string(subs[0]["sub_order_id"]))
}

func TestClient_BusinessRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"message":"unknown shop"}`)
	}))
	defer server.Close()

	client := printer.NewClient(server.URL)
	result, err := client.Send(context.Background(), samplePayload())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "unknown shop", result.Message)
}

func TestClient_ServerErrorIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := printer.NewClient(server.URL)
	_, err := client.Send(context.Background(), samplePayload())
	assert.Error(t, err)
}

func TestClient_MissingEndpoint(t *testing.T) {
	client := printer.NewClient("")
	_, err := client.Send(context.Background(), samplePayload())
	assert.Error(t, err)
}

func TestCMToPixels(t *testing.T) {
	// 2.54 cm is exactly one inch at 300 DPI.
	assert.Equal(t, 300, printer.CMToPixels(2.54))
	assert.Equal(t, 1795, printer.CMToPixels(15.2))
	assert.Equal(t, 0, printer.CMToPixels(0))
}
