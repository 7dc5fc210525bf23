package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"3.5", "3.50"},
		{"7.20", "7.20"},
		{"0", "0.00"},
		{"12", "12.00"},
		{"-1.25", "-1.25"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := ParseMoney(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m.String())
		})
	}
}

func TestParseMoney_Invalid(t *testing.T) {
	for _, input := range []string{"", "abc", "1.2.3", "NaN", "Infinity"} {
		_, err := ParseMoney(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestMoney_ZeroValue(t *testing.T) {
	var m Money
	assert.Equal(t, "0.00", m.String())
	assert.Equal(t, 0, m.Sign())
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustMoney("3.50")
	b := MustMoney("7.20")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "10.70", sum.String())

	triple, err := a.MulInt(3)
	require.NoError(t, err)
	assert.Equal(t, "10.50", triple.String())

	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 0, a.Cmp(MustMoney("3.5")))
}

func TestMoney_NoBinaryFloatDrift(t *testing.T) {
	// 0.1 + 0.2 is the classic float failure
	sum, err := MustMoney("0.10").Add(MustMoney("0.20"))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Cmp(MustMoney("0.30")))
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(MustMoney("3.5"))
	require.NoError(t, err)
	assert.Equal(t, `"3.50"`, string(data))

	var fromString Money
	require.NoError(t, json.Unmarshal([]byte(`"7.20"`), &fromString))
	assert.Equal(t, "7.20", fromString.String())

	var fromNumber Money
	require.NoError(t, json.Unmarshal([]byte(`1.5`), &fromNumber))
	assert.Equal(t, "1.50", fromNumber.String())

	var fromNull Money
	assert.Error(t, json.Unmarshal([]byte(`null`), &fromNull))
}

func TestTotal(t *testing.T) {
	items := []LineItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: MustMoney("1.50")},
		{ProductID: "p2", Quantity: 1, UnitPrice: MustMoney("0.50")},
	}
	total, err := Total(items)
	require.NoError(t, err)
	assert.Equal(t, "3.50", total.String())

	empty, err := Total(nil)
	require.NoError(t, err)
	assert.Equal(t, "0.00", empty.String())
}
