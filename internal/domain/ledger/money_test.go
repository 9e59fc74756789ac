package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    Cents
		wantErr bool
	}{
		{name: "whole", in: "10", want: 1000},
		{name: "two places", in: "2.50", want: 250},
		{name: "one place", in: "7.5", want: 750},
		{name: "negative", in: "-1.25", want: -125},
		{name: "too precise", in: "0.005", wantErr: true},
		{name: "garbage", in: "ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCents_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "7.50", Cents(750).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "10.00", Cents(1000).String())
}

func TestTransaction_Signed(t *testing.T) {
	t.Parallel()

	charge := Transaction{Type: TypeCharge, Amount: 250}
	refund := Transaction{Type: TypeRefund, Amount: 250}

	assert.Equal(t, Cents(-250), charge.Signed())
	assert.Equal(t, Cents(250), refund.Signed())
}
