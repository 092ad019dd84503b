package curator

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaterialize_FitsAsIsWhenUnderBudget(t *testing.T) {
	c := New(10_000)
	c.Append("source-a", "widgets are blue")
	c.Append("source-b", "gadgets are red")
	out := c.Materialize()
	assert.Contains(t, out, "widgets are blue")
	assert.Contains(t, out, "gadgets are red")
}

func TestAppend_TruncatesToPerRecordCap(t *testing.T) {
	c := New(100_000)
	c.Append("source-a", strings.Repeat("x", 5000))
	assert.Equal(t, 1, c.Len())
	out := c.Materialize()
	assert.LessOrEqual(t, len(out), perRecordCap+20)
}

func TestMaterialize_PricePriorityOverGeneral(t *testing.T) {
	c := New(200)
	c.Append("price-source", "Widget price: $499.99 per unit, confirmed by three retailers.")
	c.Append("general-source", strings.Repeat("background filler text with no monetary value ", 20))
	out := c.Materialize()
	assert.Contains(t, out, "$499.99")
	assert.NotContains(t, out, "background filler")
}

func TestMaterialize_DropsGeneralTailWhenNoPriceData(t *testing.T) {
	c := New(100)
	c.Append("oldest", "first piece of general evidence gathered early in the mission")
	c.Append("newest", "second piece of general evidence gathered later in the mission")
	out := c.Materialize()
	assert.Contains(t, out, "oldest")
	assert.NotContains(t, out, "newest")
}

func TestMaterialize_HundredPriceRecordsExceedBudgetYieldsSummary(t *testing.T) {
	c := New(28 * 1024)
	for i := 0; i < 100; i++ {
		content := fmt.Sprintf("Market report %d: the price for the component is $%d.00 per unit, and analysts expect the price to keep climbing as supply tightens further into the quarter. %s",
			i, 100+i, strings.Repeat("additional context padding text ", 40))
		c.Append(fmt.Sprintf("src-%d", i), content)
	}
	out := c.Materialize()
	assert.LessOrEqual(t, len(out), 28*1024)
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "additional context padding text additional context padding text additional context padding text additional context padding text additional context padding text additional context padding text additional context padding text additional context padding text additional context padding text additional context padding text")
}

func TestIsPriceBearing_DetectsCurrencySignals(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"the widget costs $42", true},
		{"price: 42 USD", true},
		{"listed at €99", true},
		{"quoted at £15", true},
		{"the MSRP is 499 for this item", true},
		{"no monetary content here at all", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsPriceBearing(c.content), c.content)
	}
}
