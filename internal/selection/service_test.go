package selection

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"photoprint-backend/internal/models"
)

func product(price, extra string, free int) *models.Product {
	return &models.Product{
		Price:              decimal.RequireFromString(price),
		ExtraPhotoPrice:    decimal.RequireFromString(extra),
		FreeSelectionCount: free,
	}
}

func rowsFor(paths ...string) []models.SelectionOrder {
	out := make([]models.SelectionOrder, len(paths))
	for i, p := range paths {
		out[i] = models.SelectionOrder{ImagePath: p, Quantity: 1}
	}
	return out
}

func TestPriceRows_WithinFreeAllowance(t *testing.T) {
	rows := rowsFor("a.jpg", "b.jpg")
	extraCount, extraFee := priceRows(rows, product("50", "10", 3))
	assert.Equal(t, 0, extraCount)
	assert.True(t, extraFee.IsZero())
	assert.True(t, rows[0].Price.Equal(decimal.RequireFromString("50")))
	assert.True(t, rows[1].Price.Equal(decimal.RequireFromString("50")))
}

func TestPriceRows_ExtraImagesSurcharged(t *testing.T) {
	// Three distinct images, one free: the second and third each carry the
	// 10 yuan surcharge, so the order totals 50+60+60 = 170.
	rows := rowsFor("a.jpg", "b.jpg", "c.jpg")
	extraCount, extraFee := priceRows(rows, product("50", "10", 1))

	assert.Equal(t, 2, extraCount)
	assert.True(t, extraFee.Equal(decimal.RequireFromString("20")), "got %s", extraFee)
	assert.True(t, rows[0].Price.Equal(decimal.RequireFromString("50")))
	assert.True(t, rows[1].Price.Equal(decimal.RequireFromString("60")))
	assert.True(t, rows[2].Price.Equal(decimal.RequireFromString("60")))

	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Price)
	}
	assert.True(t, total.Equal(decimal.RequireFromString("170")), "got %s", total)
}

func TestPriceRows_DuplicateImageCountsOnce(t *testing.T) {
	// Two rows of the same image in different sizes count as one distinct
	// image against the free allowance.
	rows := rowsFor("a.jpg", "a.jpg", "b.jpg")
	extraCount, extraFee := priceRows(rows, product("50", "10", 1))

	assert.Equal(t, 1, extraCount)
	assert.True(t, extraFee.Equal(decimal.RequireFromString("10")), "got %s", extraFee)
	assert.True(t, rows[0].Price.Equal(decimal.RequireFromString("50")))
	assert.True(t, rows[1].Price.Equal(decimal.RequireFromString("50")))
	assert.True(t, rows[2].Price.Equal(decimal.RequireFromString("60")))
}

func TestPriceRows_RepeatedExtraImageChargedOnce(t *testing.T) {
	// The second image is extra, but picking it in two rows (two sizes)
	// must not double the surcharge: fee stays extra_count x 10.
	rows := rowsFor("a.jpg", "b.jpg", "b.jpg")
	extraCount, extraFee := priceRows(rows, product("50", "10", 1))

	assert.Equal(t, 1, extraCount)
	assert.True(t, extraFee.Equal(decimal.RequireFromString("10")), "got %s", extraFee)
	assert.True(t, rows[0].Price.Equal(decimal.RequireFromString("50")))
	assert.True(t, rows[1].Price.Equal(decimal.RequireFromString("60")))
	assert.True(t, rows[2].Price.Equal(decimal.RequireFromString("50")))
}

func TestSumRowTotals_MultipliesByQuantity(t *testing.T) {
	rows := rowsFor("a.jpg", "b.jpg")
	rows[0].Price = decimal.RequireFromString("50")
	rows[0].Quantity = 3
	rows[1].Price = decimal.RequireFromString("60")
	rows[1].Quantity = 0 // unset quantity counts as one

	total := sumRowTotals(rows)
	assert.True(t, total.Equal(decimal.RequireFromString("210")), "got %s", total)
}

func TestPriceRows_KeepsExplicitRowPrice(t *testing.T) {
	rows := rowsFor("a.jpg")
	rows[0].Price = decimal.RequireFromString("88")
	_, _ = priceRows(rows, product("50", "10", 3))
	assert.True(t, rows[0].Price.Equal(decimal.RequireFromString("88")))
}

func TestValidOpenID(t *testing.T) {
	assert.False(t, validOpenID(""))
	assert.False(t, validOpenID("anonymous"))
	assert.False(t, validOpenID("short"))
	assert.True(t, validOpenID("oX8a2-valid-openid"))
}

func TestPhonePattern(t *testing.T) {
	assert.True(t, phonePattern.MatchString("13812345678"))
	assert.False(t, phonePattern.MatchString("2381234567"))
	assert.False(t, phonePattern.MatchString("138123456"))
	assert.False(t, phonePattern.MatchString("138123456789"))
}
