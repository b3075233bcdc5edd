package services

import (
	"strings"
	"testing"
	"time"

	domain "github.com/mercy-field/pos/internal/domain"
)

func TestReceiptRendererIncludesLinesAndTotals(t *testing.T) {
	renderer := NewReceiptRenderer()

	doc, err := renderer.Render(domain.OrderSnapshot{
		Order: domain.OrderComputation{
			Lines: []domain.LineComputation{
				{Name: "Brass Lamp", Quantity: 2, DiscountedUnit: dec("9.00"), LineTotal: dec("18.00")},
			},
			Subtotal: dec("18.00"),
			Tax:      dec("1.37"),
			Total:    dec("18.47"),
		},
		GlobalDiscountPercent: dec("5"),
		BuyerName:             "Pat",
		Method:                domain.MethodCard,
		CapturedAt:            time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"Payment method: Card",
		"Buyer: Pat",
		"<td>Brass Lamp</td><td>2</td><td>$9.00</td><td>$18.00</td>",
		"Subtotal: $18.00",
		"Global discount: 5%",
		"Tax: $1.37",
		"Total: $18.47",
		"2026-03-01 10:30 UTC",
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("receipt missing %q:\n%s", want, doc)
		}
	}
}

func TestReceiptRendererStripsMarkupFromFreeText(t *testing.T) {
	renderer := NewReceiptRenderer()

	doc, err := renderer.Render(domain.OrderSnapshot{
		Order: domain.OrderComputation{
			Lines: []domain.LineComputation{
				{Name: `<script>alert("x")</script>Mug`, Quantity: 1, DiscountedUnit: dec("2.00"), LineTotal: dec("2.00")},
			},
		},
		BuyerName: "<b>Pat</b>",
		Method:    domain.MethodCash,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if strings.Contains(doc, "<script>") || strings.Contains(doc, "<b>") {
		t.Fatalf("markup must not survive into the receipt:\n%s", doc)
	}
	if !strings.Contains(doc, "<td>Mug</td>") {
		t.Fatalf("expected sanitised name to remain, got:\n%s", doc)
	}
	if !strings.Contains(doc, "Buyer: Pat") {
		t.Fatalf("expected sanitised buyer name, got:\n%s", doc)
	}
}

func TestReceiptRendererOmitsBuyerWhenEmpty(t *testing.T) {
	renderer := NewReceiptRenderer()

	doc, err := renderer.Render(domain.OrderSnapshot{Method: domain.MethodCash})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(doc, "Buyer:") {
		t.Fatalf("buyer row must be omitted when empty:\n%s", doc)
	}
}
