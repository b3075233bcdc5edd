package services

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/mercy-field/pos/internal/domain"
)

const receiptTemplateText = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Receipt</title></head>
<body>
<h2>Receipt</h2>
<p>Payment method: {{.Method}}</p>
{{- if .BuyerName}}
<p>Buyer: {{.BuyerName}}</p>
{{- end}}
<table border="0" cellpadding="6" cellspacing="0">
{{- range .Lines}}
<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>${{.DiscountedUnit}}</td><td>${{.LineTotal}}</td></tr>
{{- end}}
</table>
<hr/>
<div>Subtotal: ${{.Subtotal}}</div>
<div>Global discount: {{.GlobalDiscountPercent}}%</div>
<div>Tax: ${{.Tax}}</div>
<h3>Total: ${{.Total}}</h3>
<p>{{.CapturedAt}}</p>
</body>
</html>
`

var receiptTemplate = template.Must(template.New("receipt").Parse(receiptTemplateText))

type receiptLine struct {
	Name           string
	Quantity       int
	DiscountedUnit string
	LineTotal      string
}

type receiptData struct {
	Method                string
	BuyerName             string
	Lines                 []receiptLine
	Subtotal              string
	GlobalDiscountPercent string
	Tax                   string
	Total                 string
	CapturedAt            string
}

// ReceiptRenderer turns a finalised order snapshot into a printable HTML
// document. It is pure: no state beyond the parsed template, no I/O. Free
// text (item names, buyer name) is stripped of markup before templating, so
// pasted-in HTML can neither render nor break the document.
type ReceiptRenderer struct {
	policy *bluemonday.Policy
}

// NewReceiptRenderer constructs the renderer.
func NewReceiptRenderer() *ReceiptRenderer {
	return &ReceiptRenderer{policy: bluemonday.StrictPolicy()}
}

// Render produces the receipt document for the snapshot.
func (r *ReceiptRenderer) Render(snapshot domain.OrderSnapshot) (string, error) {
	data := receiptData{
		Method:                methodLabel(snapshot.Method),
		BuyerName:             r.cleanText(snapshot.BuyerName),
		Subtotal:              snapshot.Order.Subtotal.StringFixed(2),
		GlobalDiscountPercent: snapshot.GlobalDiscountPercent.String(),
		Tax:                   snapshot.Order.Tax.StringFixed(2),
		Total:                 snapshot.Order.Total.StringFixed(2),
	}
	if !snapshot.CapturedAt.IsZero() {
		data.CapturedAt = snapshot.CapturedAt.UTC().Format("2006-01-02 15:04 UTC")
	}

	for _, line := range snapshot.Order.Lines {
		data.Lines = append(data.Lines, receiptLine{
			Name:           r.cleanText(line.Name),
			Quantity:       line.Quantity,
			DiscountedUnit: line.DiscountedUnit.StringFixed(2),
			LineTotal:      line.LineTotal.StringFixed(2),
		})
	}

	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return buf.String(), nil
}

// cleanText strips markup from a free-text field. The sanitizer entity-escapes
// what it keeps; unescape so the template's own escaping runs exactly once.
func (r *ReceiptRenderer) cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(r.policy.Sanitize(s)))
}

func methodLabel(method domain.PaymentMethod) string {
	switch method {
	case domain.MethodCard:
		return "Card"
	case domain.MethodCash:
		return "Cash"
	default:
		return string(method)
	}
}
