package service

import (
	"errors"
	"testing"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerPeriodInterest(t *testing.T) {
	tests := []struct {
		name string
		in   InterestInput
		want int64
	}{
		{
			name: "money per million per day, one day",
			in: InterestInput{
				Principal: decimal.NewFromInt(5_000_000), Rate: decimal.NewFromInt(10_000),
				Type: domain.InterestMoneyPerMillionPerDay, PeriodLength: 1, PeriodUnit: domain.PeriodUnitDay,
			},
			want: 50_000,
		},
		{
			name: "money per million rounds the millions first",
			in: InterestInput{
				Principal: decimal.NewFromInt(2_600_000), Rate: decimal.NewFromInt(1_000),
				Type: domain.InterestMoneyPerMillionPerDay, PeriodLength: 10, PeriodUnit: domain.PeriodUnitDay,
			},
			want: 30_000,
		},
		{
			name: "money per day over a week",
			in: InterestInput{
				Principal: decimal.NewFromInt(1_000_000), Rate: decimal.NewFromInt(2_000),
				Type: domain.InterestMoneyPerDay, PeriodLength: 1, PeriodUnit: domain.PeriodUnitWeek,
			},
			want: 14_000,
		},
		{
			name: "percent per month uses actual days",
			in: InterestInput{
				Principal: decimal.NewFromInt(3_000_000), Rate: decimal.NewFromInt(3),
				Type: domain.InterestPercentPerMonth, PeriodLength: 1, PeriodUnit: domain.PeriodUnitMonth,
				DaysInPeriod: 31,
			},
			want: 93_000,
		},
		{
			name: "percent per month nominal 30 days",
			in: InterestInput{
				Principal: decimal.NewFromInt(3_000_000), Rate: decimal.NewFromInt(3),
				Type: domain.InterestPercentPerMonth, PeriodLength: 1, PeriodUnit: domain.PeriodUnitMonth,
			},
			want: 90_000,
		},
		{
			name: "money per period ignores days",
			in: InterestInput{
				Principal: decimal.NewFromInt(3_000_000), Rate: decimal.NewFromInt(150_000),
				Type: domain.InterestMoneyPerPeriod, PeriodLength: 10, PeriodUnit: domain.PeriodUnitDay,
				DaysInPeriod: 10,
			},
			want: 150_000,
		},
		{
			name: "percent per period",
			in: InterestInput{
				Principal: decimal.NewFromInt(4_000_000), Rate: decimal.NewFromFloat(2.5),
				Type: domain.InterestPercentPerPeriod, PeriodLength: 1, PeriodUnit: domain.PeriodUnitMonth,
			},
			want: 100_000,
		},
		{
			name: "money per week over two weeks",
			in: InterestInput{
				Principal: decimal.NewFromInt(1_000_000), Rate: decimal.NewFromInt(70_000),
				Type: domain.InterestMoneyPerWeek, PeriodLength: 2, PeriodUnit: domain.PeriodUnitWeek,
			},
			want: 140_000,
		},
		{
			name: "percent per week over three days rounds at the end",
			in: InterestInput{
				Principal: decimal.NewFromInt(1_000_000), Rate: decimal.NewFromInt(1),
				Type: domain.InterestPercentPerWeek, PeriodLength: 3, PeriodUnit: domain.PeriodUnitDay,
			},
			want: 4_286,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PerPeriodInterest(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "expected %d, got %s", tt.want, got)
		})
	}
}

func TestPerPeriodInterest_UnsupportedTypeReturnsZeroAndError(t *testing.T) {
	got, err := PerPeriodInterest(InterestInput{
		Principal:    decimal.NewFromInt(1_000_000),
		Rate:         decimal.NewFromInt(1_000),
		Type:         domain.InterestType("PERCENT_PER_YEAR"),
		PeriodLength: 1,
		PeriodUnit:   domain.PeriodUnitDay,
	})

	assert.True(t, got.IsZero())
	assert.True(t, errors.Is(err, domain.ErrUnsupportedInterestType))
}

func TestPerPeriodInterest_UnsupportedUnit(t *testing.T) {
	got, err := PerPeriodInterest(InterestInput{
		Principal:    decimal.NewFromInt(1_000_000),
		Rate:         decimal.NewFromInt(1_000),
		Type:         domain.InterestMoneyPerDay,
		PeriodLength: 1,
		PeriodUnit:   domain.PeriodUnit("year"),
	})

	assert.True(t, got.IsZero())
	assert.ErrorIs(t, err, domain.ErrUnsupportedPeriodUnit)
}

func TestPerPeriodInterest_ScalesWithPrincipal(t *testing.T) {
	types := []domain.InterestType{
		domain.InterestMoneyPerMillionPerDay,
		domain.InterestPercentPerMonth,
		domain.InterestPercentPerPeriod,
		domain.InterestPercentPerWeek,
	}
	for _, typ := range types {
		t.Run(string(typ), func(t *testing.T) {
			base := InterestInput{
				Principal: decimal.NewFromInt(2_000_000), Rate: decimal.NewFromInt(3),
				Type: typ, PeriodLength: 7, PeriodUnit: domain.PeriodUnitDay,
			}
			doubled := base
			doubled.Principal = decimal.NewFromInt(4_000_000)

			a, err := PerPeriodInterest(base)
			require.NoError(t, err)
			b, err := PerPeriodInterest(doubled)
			require.NoError(t, err)

			assert.True(t, b.Equal(a.Mul(decimal.NewFromInt(2))), "%s: %s vs %s", typ, a, b)
		})
	}
}

func TestAccruedInterest(t *testing.T) {
	perDay := InterestInput{
		Principal: decimal.NewFromInt(5_000_000), Rate: decimal.NewFromInt(10_000),
		Type: domain.InterestMoneyPerMillionPerDay, PeriodLength: 1, PeriodUnit: domain.PeriodUnitDay,
	}

	amount, units, unit, err := AccruedInterest(perDay, 10)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(500_000)))
	assert.Equal(t, 10, units)
	assert.Equal(t, domain.LateUnitDay, unit)

	amount, units, _, err = AccruedInterest(perDay, 0)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
	assert.Equal(t, 0, units)
}

func TestAccruedInterest_PerPeriodProratesCurrentPeriod(t *testing.T) {
	in := InterestInput{
		Principal: decimal.NewFromInt(3_000_000), Rate: decimal.NewFromInt(100_000),
		Type: domain.InterestMoneyPerPeriod, PeriodLength: 10, PeriodUnit: domain.PeriodUnitDay,
	}

	amount, units, unit, err := AccruedInterest(in, 15)
	require.NoError(t, err)

	// one whole period plus half of the second
	assert.True(t, amount.Equal(decimal.NewFromInt(150_000)), "got %s", amount)
	assert.Equal(t, 2, units)
	assert.Equal(t, domain.LateUnitPeriod, unit)
}

func TestAccruedCalendarInterest(t *testing.T) {
	tests := []struct {
		name      string
		typ       domain.InterestType
		rate      int64
		unit      domain.PeriodUnit
		loanDate  time.Time
		asOf      time.Time
		wantAmt   int64
		wantUnits int
	}{
		{"on the loan date", domain.InterestMoneyPerPeriod, 100_000, domain.PeriodUnitMonth, day(2023, time.January, 1), day(2023, time.January, 1), 0, 0},
		{"two whole calendar months", domain.InterestMoneyPerPeriod, 100_000, domain.PeriodUnitMonth, day(2023, time.January, 1), day(2023, time.March, 1), 200_000, 2},
		{"half of february", domain.InterestMoneyPerPeriod, 100_000, domain.PeriodUnitMonth, day(2023, time.January, 1), day(2023, time.February, 15), 150_000, 2},
		{"percent over two months", domain.InterestPercentPerPeriod, 3, domain.PeriodUnitMonth, day(2023, time.January, 1), day(2023, time.March, 1), 300_000, 2},
		{"regular month clamped to february", domain.InterestMoneyPerPeriod, 100_000, domain.PeriodUnitRegularMonth, day(2023, time.January, 31), day(2023, time.February, 28), 100_000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := domain.LoanTerms{
				ContractType:     domain.ContractTypePawn,
				LoanDate:         tt.loanDate,
				Principal:        decimal.NewFromInt(5_000_000),
				InterestType:     tt.typ,
				InterestValue:    decimal.NewFromInt(tt.rate),
				PaymentPeriod:    1,
				PaymentUnit:      tt.unit,
				NumberOfPayments: 6,
			}
			amount, units, err := AccruedCalendarInterest(terms, tt.asOf)
			if err != nil {
				t.Fatalf("AccruedCalendarInterest() error = %v", err)
			}
			if !amount.Equal(decimal.NewFromInt(tt.wantAmt)) {
				t.Errorf("AccruedCalendarInterest() amount = %s, want %d", amount, tt.wantAmt)
			}
			if units != tt.wantUnits {
				t.Errorf("AccruedCalendarInterest() units = %d, want %d", units, tt.wantUnits)
			}
		})
	}
}

func TestNominalPeriodDays(t *testing.T) {
	tests := []struct {
		length int
		unit   domain.PeriodUnit
		want   int
	}{
		{1, domain.PeriodUnitDay, 1},
		{10, domain.PeriodUnitDay, 10},
		{2, domain.PeriodUnitWeek, 14},
		{1, domain.PeriodUnitMonth, 30},
		{3, domain.PeriodUnitRegularMonth, 90},
		{0, domain.PeriodUnitDay, 1},
	}
	for _, tt := range tests {
		got, err := NominalPeriodDays(tt.length, tt.unit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("NominalPeriodDays(%d, %s) = %d, want %d", tt.length, tt.unit, got, tt.want)
		}
	}
}
