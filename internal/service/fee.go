package service

import (
	"math/big"
)

const feeDenominator = 10_000

// Fee вычисляет комиссию платформы в базисных пунктах:
// floor(amount * feeBps / 10_000). Произведение считается в произвольной
// точности, поэтому переполнение до деления невозможно.
func Fee(amount, feeBps int64) int64 {
	product := new(big.Int).Mul(big.NewInt(amount), big.NewInt(feeBps))
	product.Quo(product, big.NewInt(feeDenominator))
	return product.Int64()
}

// SplitFee делит сумму на комиссию и чистую часть получателя.
// Всегда fee + net == amount.
func SplitFee(amount, feeBps int64) (fee, net int64) {
	fee = Fee(amount, feeBps)
	return fee, amount - fee
}
