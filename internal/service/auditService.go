package service

import (
	"fmt"
	"math"

	"github.com/kwasham/numzy/config"
	"github.com/kwasham/numzy/internal/entity"
)

// amountTolerance absorbs rounding differences between printed line
// items and printed totals.
const amountTolerance = 0.02

const lowConfidenceThreshold = 0.8

// AuditService applies the rule based checks that decide whether a
// receipt needs a human look.
type AuditService struct {
	unusualAmountThreshold float64
}

func NewAuditService(cfg config.ProcessingConfig) *AuditService {
	threshold := cfg.UnusualAmountThreshold
	if threshold <= 0 {
		threshold = 1000
	}
	return &AuditService{unusualAmountThreshold: threshold}
}

// Validate checks the extracted data for arithmetic and plausibility
// problems. Checks whose inputs were not extracted are skipped rather
// than failed.
func (s *AuditService) Validate(data *entity.ExtractedData) *entity.ValidationResult {
	result := &entity.ValidationResult{}

	if data.Subtotal != nil && len(data.Items) > 0 {
		itemsTotal := 0.0
		for _, item := range data.Items {
			itemsTotal += item.Total
		}
		if math.Abs(itemsTotal-*data.Subtotal) > amountTolerance {
			result.Flags.MathError = true
			result.Errors = append(result.Errors,
				fmt.Sprintf("items total %.2f does not match subtotal %.2f", itemsTotal, *data.Subtotal))
		}
	}

	if data.Subtotal != nil && data.Tax != nil && data.Total != nil {
		if math.Abs(*data.Subtotal+*data.Tax-*data.Total) > amountTolerance {
			result.Flags.MathError = true
			result.Errors = append(result.Errors,
				fmt.Sprintf("subtotal %.2f plus tax %.2f does not match total %.2f", *data.Subtotal, *data.Tax, *data.Total))
		}
	}

	if data.Confidence.Overall < lowConfidenceThreshold {
		result.Flags.LowConfidence = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("extraction confidence %.2f is below %.2f", data.Confidence.Overall, lowConfidenceThreshold))
	}

	if data.Total != nil && *data.Total > s.unusualAmountThreshold {
		result.Flags.UnusualAmount = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("total %.2f exceeds %.2f", *data.Total, s.unusualAmountThreshold))
	}

	result.Flags.NeedsManualReview = result.Flags.MathError ||
		result.Flags.LowConfidence ||
		result.Flags.UnusualAmount
	result.IsValid = len(result.Errors) == 0

	return result
}
