package models

import "testing"

func TestPriceAlert_ShouldTrigger(t *testing.T) {
	t.Run("above triggers at exactly target", func(t *testing.T) {
		alert := PriceAlert{Cryptocurrency: "BTC", TargetPrice: 50000, Condition: ConditionAbove}
		if !alert.ShouldTrigger(50000) {
			t.Error("Should trigger when price equals target")
		}
	})

	t.Run("above triggers beyond target", func(t *testing.T) {
		alert := PriceAlert{Cryptocurrency: "BTC", TargetPrice: 50000, Condition: ConditionAbove}
		if !alert.ShouldTrigger(51000) {
			t.Error("Should trigger above target price")
		}
	})

	t.Run("above does not trigger below target", func(t *testing.T) {
		alert := PriceAlert{Cryptocurrency: "BTC", TargetPrice: 50000, Condition: ConditionAbove}
		if alert.ShouldTrigger(49999.99) {
			t.Error("Should not trigger below target price")
		}
	})

	t.Run("below triggers at exactly target", func(t *testing.T) {
		alert := PriceAlert{Cryptocurrency: "ETH", TargetPrice: 2000, Condition: ConditionBelow}
		if !alert.ShouldTrigger(2000) {
			t.Error("Should trigger when price equals target")
		}
	})

	t.Run("below triggers under target", func(t *testing.T) {
		alert := PriceAlert{Cryptocurrency: "ETH", TargetPrice: 2000, Condition: ConditionBelow}
		if !alert.ShouldTrigger(1850) {
			t.Error("Should trigger under target price")
		}
	})

	t.Run("below does not trigger above target", func(t *testing.T) {
		alert := PriceAlert{Cryptocurrency: "ETH", TargetPrice: 2000, Condition: ConditionBelow}
		if alert.ShouldTrigger(2500) {
			t.Error("Should not trigger above target price")
		}
	})

	t.Run("unknown condition never triggers", func(t *testing.T) {
		alert := PriceAlert{Cryptocurrency: "BTC", TargetPrice: 50000, Condition: "sideways"}
		if alert.ShouldTrigger(50000) {
			t.Error("Unknown condition should not trigger")
		}
	})
}

func TestPriceAlert_Symbol(t *testing.T) {
	alert := PriceAlert{Cryptocurrency: "BtC"}
	if got := alert.Symbol(); got != "btc" {
		t.Errorf("Expected btc, got %s", got)
	}
}

func TestValidCondition(t *testing.T) {
	for _, c := range []string{ConditionAbove, ConditionBelow} {
		if !ValidCondition(c) {
			t.Errorf("%s should be valid", c)
		}
	}
	if ValidCondition("between") {
		t.Error("between should not be valid")
	}
}
