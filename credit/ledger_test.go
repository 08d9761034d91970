package credit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDebitClampsAtZero(t *testing.T) {
	l := New(100, "USD", 1, nil)

	assert.Equal(t, int64(60), l.Debit(40))
	assert.Equal(t, int64(0), l.Debit(100), "over-debit clamps to zero")
	assert.Equal(t, int64(0), l.Balance())

	assert.Equal(t, int64(0), l.Debit(-5), "non-positive amounts are ignored")
}

func TestCanAfford(t *testing.T) {
	l := New(50, "USD", 1, nil)
	assert.True(t, l.CanAfford(50))
	assert.False(t, l.CanAfford(51))

	l.Debit(50)
	assert.False(t, l.CanAfford(1))
	assert.True(t, l.CanAfford(0))
}

func TestCreditAndDisplayConversion(t *testing.T) {
	l := New(0, "USD", 1, nil)
	l.Credit(2500)

	bal, cur := l.DisplayBalance()
	assert.Equal(t, "USD", cur)
	assert.InDelta(t, 25.0, bal, 1e-9)

	l.SetDisplayCurrency("EUR", 0.9)
	bal, cur = l.DisplayBalance()
	assert.Equal(t, "EUR", cur)
	assert.InDelta(t, 22.5, bal, 1e-9)
	assert.Equal(t, int64(2500), l.Balance(), "conversion never touches the stored balance")

	l.SetDisplayCurrency("JPY", 0)
	_, cur = l.DisplayBalance()
	assert.Equal(t, "EUR", cur, "non-positive rates are rejected")
}

func TestDailyUsageCounts(t *testing.T) {
	l := New(1000, "USD", 1, nil)
	l.Debit(10)
	l.Debit(20)

	ops, amount := l.DailyUsage()
	assert.Equal(t, int64(2), ops)
	assert.Equal(t, int64(30), amount)
}

// For any sequence of individually-clamped debits the balance never goes
// negative and equals the running clamp of the same sequence.
func TestBalanceNeverNegativeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Int64Range(0, 10_000).Draw(t, "start")
		l := New(start, "USD", 1, nil)

		want := start
		n := rapid.IntRange(1, 50).Draw(t, "debits")
		for i := 0; i < n; i++ {
			amount := rapid.Int64Range(1, 2_000).Draw(t, "amount")
			got := l.Debit(amount)

			want -= amount
			if want < 0 {
				want = 0
			}
			if got != want || got < 0 {
				t.Fatalf("balance %d, want %d", got, want)
			}
		}
	})
}
