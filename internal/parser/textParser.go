// Parsing of raw OCR text into structured receipt data.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kwasham/numzy/internal/entity"
)

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`),
	}
	timePattern = regexp.MustCompile(`\d{1,2}:\d{2}(?::\d{2})?`)

	receiptNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)RECEIPT #:?\s*(\w+)`),
		regexp.MustCompile(`(?i)TRANS #:?\s*(\w+)`),
		regexp.MustCompile(`#(\d+)`),
	}

	itemPricePattern    = regexp.MustCompile(`\$(\d+\.\d{2})$`)
	itemQuantityPattern = regexp.MustCompile(`(?i)^(\d+)\s*x\s*`)

	amountPatterns = map[string]*regexp.Regexp{
		"subtotal": regexp.MustCompile(`(?i)^SUBTOTAL:?\s*\$?(\d+\.\d{2})`),
		"tax":      regexp.MustCompile(`(?i)^TAX:?\s*\$?(\d+\.\d{2})`),
		"total":    regexp.MustCompile(`(?i)^TOTAL:?\s*\$?(\d+\.\d{2})`),
	}

	// Summary rows look like priced items but must not be counted as
	// purchases.
	summaryLinePattern = regexp.MustCompile(`(?i)^(SUBTOTAL|TAX|TOTAL|CHANGE|PAYMENT|AUTH|BALANCE|TIP)\b`)

	paymentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)VISA\s*\*+\d{4}`),
		regexp.MustCompile(`(?i)MASTERCARD\s*\*+\d{4}`),
		regexp.MustCompile(`(?i)AMEX\s*\*+\d{4}`),
		regexp.MustCompile(`(?i)DEBIT\s*\*+\d{4}`),
		regexp.MustCompile(`(?i)\bCASH\b`),
	}

	addressLinePattern = regexp.MustCompile(`(?i)\b(street|st|ave|avenue|blvd|road|rd)\b`)
	numberLinePattern  = regexp.MustCompile(`^\d+[\d\s-]*$`)
)

// TextParser extracts structured receipt data from OCR text using the
// line and amount heuristics printed receipts commonly follow.
type TextParser struct{}

func NewTextParser() *TextParser {
	return &TextParser{}
}

func (p *TextParser) ParseReceiptText(text string) *entity.ExtractedData {
	lines := splitLines(text)

	data := &entity.ExtractedData{
		Merchant:      p.extractMerchant(lines),
		Address:       p.extractAddress(lines),
		Date:          p.extractDate(text),
		Time:          p.extractTime(text),
		ReceiptNumber: p.extractReceiptNumber(text),
		Items:         p.extractItems(lines),
		Subtotal:      p.extractAmount(lines, "subtotal"),
		Tax:           p.extractAmount(lines, "tax"),
		Total:         p.extractAmount(lines, "total"),
		PaymentMethod: p.extractPaymentMethod(text),
	}
	data.Confidence = p.scoreConfidence(data)

	return data
}

// extractMerchant picks the first line that is neither an address nor
// a run of digits, which is where receipts put the store name.
func (p *TextParser) extractMerchant(lines []string) string {
	for _, line := range lines {
		if !p.isAddressLine(line) && !p.isNumberLine(line) {
			return line
		}
	}
	return "Unknown Merchant"
}

func (p *TextParser) extractAddress(lines []string) string {
	for _, line := range lines {
		if p.isAddressLine(line) {
			return line
		}
	}
	return ""
}

func (p *TextParser) extractDate(text string) string {
	for _, pattern := range datePatterns {
		if match := pattern.FindString(text); match != "" {
			return match
		}
	}
	return ""
}

func (p *TextParser) extractTime(text string) string {
	return timePattern.FindString(text)
}

func (p *TextParser) extractReceiptNumber(text string) string {
	for _, pattern := range receiptNumberPatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			return match[1]
		}
	}
	return ""
}

func (p *TextParser) extractItems(lines []string) []entity.ReceiptItem {
	var items []entity.ReceiptItem

	for _, line := range lines {
		if summaryLinePattern.MatchString(line) {
			continue
		}
		item, ok := p.parseItemLine(line)
		if !ok {
			continue
		}
		item.Position = len(items)
		items = append(items, item)
	}
	return items
}

// parseItemLine splits "2x Coffee  $9.00" style rows into description,
// quantity and amounts. The trailing price is the line total; a
// quantity prefix divides it into the unit price.
func (p *TextParser) parseItemLine(line string) (entity.ReceiptItem, bool) {
	loc := itemPricePattern.FindStringSubmatchIndex(line)
	if loc == nil {
		return entity.ReceiptItem{}, false
	}

	price, err := strconv.ParseFloat(line[loc[2]:loc[3]], 64)
	if err != nil {
		return entity.ReceiptItem{}, false
	}

	description := strings.TrimSpace(line[:loc[0]])
	if description == "" {
		return entity.ReceiptItem{}, false
	}

	quantity := 1
	if qty := itemQuantityPattern.FindStringSubmatch(description); qty != nil {
		if n, err := strconv.Atoi(qty[1]); err == nil && n > 0 {
			quantity = n
			description = strings.TrimSpace(itemQuantityPattern.ReplaceAllString(description, ""))
		}
	}

	return entity.ReceiptItem{
		Description: description,
		Quantity:    quantity,
		ItemPrice:   price / float64(quantity),
		Total:       price,
	}, true
}

func (p *TextParser) extractAmount(lines []string, kind string) *float64 {
	pattern, ok := amountPatterns[kind]
	if !ok {
		return nil
	}

	for _, line := range lines {
		match := pattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		if amount, err := strconv.ParseFloat(match[1], 64); err == nil {
			return &amount
		}
	}
	return nil
}

func (p *TextParser) extractPaymentMethod(text string) string {
	for _, pattern := range paymentPatterns {
		if match := pattern.FindString(text); match != "" {
			return match
		}
	}
	return ""
}

// scoreConfidence grades how much of the expected structure was found.
// Purely presence based, there is no OCR engine signal at this layer.
func (p *TextParser) scoreConfidence(data *entity.ExtractedData) entity.ConfidenceScores {
	scores := entity.ConfidenceScores{
		Merchant: 0.3,
		Total:    0.2,
		Items:    0.3,
	}

	if data.Merchant != "" && data.Merchant != "Unknown Merchant" {
		scores.Merchant = 0.9
	}
	if data.Total != nil {
		scores.Total = 0.95
	}
	if len(data.Items) > 0 {
		scores.Items = 0.85
	}
	scores.Overall = (scores.Merchant + scores.Total + scores.Items) / 3

	return scores
}

func (p *TextParser) isAddressLine(line string) bool {
	return addressLinePattern.MatchString(line)
}

func (p *TextParser) isNumberLine(line string) bool {
	return numberLinePattern.MatchString(line)
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
