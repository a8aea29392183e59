package transfer

import (
	"context"

	"golang.org/x/time/rate"
)

// bandwidthLimiter ограничивает пропускную способность передачи.
// Поверх token bucket из x/time/rate: бюджет байтов пополняется
// непрерывно со скоростью bytesPerSecond, burst равен секундному
// окну. Производитель засыпает, когда бюджет исчерпан.
type bandwidthLimiter struct {
	limiter *rate.Limiter
	burst   int
}

// newBandwidthLimiter создает лимитер на bytesPerSecond байт в секунду.
// Неположительный лимит означает отсутствие ограничения (возвращается nil).
func newBandwidthLimiter(bytesPerSecond int64) *bandwidthLimiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &bandwidthLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond)),
		burst:   int(bytesPerSecond),
	}
}

// Wait блокирует, пока бюджет не позволит передать n байт.
// Запросы больше burst разбиваются на части, чтобы не превысить
// ограничение WaitN.
func (b *bandwidthLimiter) Wait(ctx context.Context, n int) error {
	if b == nil {
		return nil
	}

	for n > 0 {
		portion := n
		if portion > b.burst {
			portion = b.burst
		}
		if err := b.limiter.WaitN(ctx, portion); err != nil {
			return err
		}
		n -= portion
	}
	return nil
}
