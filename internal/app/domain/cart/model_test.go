package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delivergo/storefront/internal/app/domain/coupon"
	"github.com/delivergo/storefront/internal/apperr"
)

func fixedCoupon(discount, minPurchase float64) *coupon.Coupon {
	return &coupon.Coupon{Code: "SAVE", Kind: coupon.KindFixed, Discount: discount, MinPurchase: minPurchase, Active: true}
}

func percentCoupon(percent float64) *coupon.Coupon {
	return &coupon.Coupon{Code: "PCT", Kind: coupon.KindPercentage, Discount: percent, Active: true}
}

func TestPrice(t *testing.T) {
	express := &ShippingMethod{ID: "express", Name: "Express", Price: 5.99}

	t.Run("fixed coupon with shipping", func(t *testing.T) {
		items := []LineItem{{ProductID: "a", UnitPrice: 50, Quantity: 2}}
		q, err := Price(items, fixedCoupon(20, 75), express)
		require.NoError(t, err)
		assert.Equal(t, 100.00, q.Subtotal)
		assert.Equal(t, 20.00, q.Discount)
		assert.Equal(t, 5.99, q.Shipping)
		assert.Equal(t, 85.99, q.Total)
		assert.True(t, q.CouponApplied)
	})

	t.Run("below minimum purchase skips coupon", func(t *testing.T) {
		items := []LineItem{{ProductID: "a", UnitPrice: 25, Quantity: 2}}
		q, err := Price(items, fixedCoupon(20, 75), express)
		require.NoError(t, err)
		assert.Equal(t, 0.00, q.Discount)
		assert.Equal(t, 55.99, q.Total)
		assert.False(t, q.CouponApplied)
	})

	t.Run("percentage coupon", func(t *testing.T) {
		items := []LineItem{{ProductID: "a", UnitPrice: 40, Quantity: 1}}
		q, err := Price(items, percentCoupon(25), nil)
		require.NoError(t, err)
		assert.Equal(t, 10.00, q.Discount)
		assert.Equal(t, 30.00, q.Total)
	})

	t.Run("fixed discount clamps at subtotal", func(t *testing.T) {
		items := []LineItem{{ProductID: "a", UnitPrice: 10, Quantity: 1}}
		q, err := Price(items, fixedCoupon(50, 0), nil)
		require.NoError(t, err)
		assert.Equal(t, 10.00, q.Discount)
		assert.Equal(t, 0.00, q.Total)
	})

	t.Run("empty cart", func(t *testing.T) {
		q, err := Price(nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 0.00, q.Subtotal)
		assert.Equal(t, 0.00, q.Total)
	})

	t.Run("rounding stays at cents", func(t *testing.T) {
		items := []LineItem{{ProductID: "a", UnitPrice: 19.99, Quantity: 3}}
		q, err := Price(items, percentCoupon(10), nil)
		require.NoError(t, err)
		assert.Equal(t, 59.97, q.Subtotal)
		assert.Equal(t, 6.00, q.Discount)
		assert.Equal(t, 53.97, q.Total)
	})

	t.Run("negative unit price fails fast", func(t *testing.T) {
		items := []LineItem{{ProductID: "a", UnitPrice: -1, Quantity: 1}}
		_, err := Price(items, nil, nil)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("zero quantity fails fast", func(t *testing.T) {
		items := []LineItem{{ProductID: "a", UnitPrice: 5, Quantity: 0}}
		_, err := Price(items, nil, nil)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("unknown coupon kind fails", func(t *testing.T) {
		c := &coupon.Coupon{Code: "X", Kind: coupon.Kind("bogo"), Discount: 5}
		_, err := Price([]LineItem{{ProductID: "a", UnitPrice: 5, Quantity: 1}}, c, nil)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("deterministic", func(t *testing.T) {
		items := []LineItem{
			{ProductID: "a", UnitPrice: 12.49, Quantity: 3},
			{ProductID: "b", UnitPrice: 0.99, Quantity: 7},
		}
		first, err := Price(items, percentCoupon(15), express)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := Price(items, percentCoupon(15), express)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})
}

func TestCartMutation(t *testing.T) {
	t.Run("add merges duplicate product", func(t *testing.T) {
		var c Cart
		c.AddItem(LineItem{ProductID: "a", UnitPrice: 5, Quantity: 1})
		c.AddItem(LineItem{ProductID: "a", UnitPrice: 5, Quantity: 2})
		require.Len(t, c.Items, 1)
		assert.Equal(t, 3, c.Items[0].Quantity)
	})

	t.Run("update quantity", func(t *testing.T) {
		var c Cart
		c.AddItem(LineItem{ProductID: "a", UnitPrice: 5, Quantity: 1})
		c.UpdateQuantity("a", 4)
		assert.Equal(t, 4, c.Items[0].Quantity)
	})

	t.Run("update to zero removes line", func(t *testing.T) {
		var c Cart
		c.AddItem(LineItem{ProductID: "a", UnitPrice: 5, Quantity: 1})
		c.UpdateQuantity("a", 0)
		assert.Empty(t, c.Items)
	})

	t.Run("update unknown product is a no-op", func(t *testing.T) {
		var c Cart
		c.AddItem(LineItem{ProductID: "a", UnitPrice: 5, Quantity: 1})
		c.UpdateQuantity("ghost", 3)
		require.Len(t, c.Items, 1)
		assert.Equal(t, 1, c.Items[0].Quantity)
	})

	t.Run("clear drops coupon and shipping", func(t *testing.T) {
		c := Cart{
			Items:          []LineItem{{ProductID: "a", UnitPrice: 5, Quantity: 1}},
			Coupon:         fixedCoupon(1, 0),
			ShippingMethod: &ShippingMethod{ID: "std", Price: 2},
		}
		c.Clear()
		assert.Empty(t, c.Items)
		assert.Nil(t, c.Coupon)
		assert.Nil(t, c.ShippingMethod)
	})
}

func TestRound(t *testing.T) {
	assert.Equal(t, 85.99, Round(85.990000000001))
	assert.Equal(t, 0.1, Round(0.10000000000000009))
	assert.Equal(t, 2.68, Round(2.675000001))
}
