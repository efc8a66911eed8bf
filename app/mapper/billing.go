package mapper

import (
	"time"

	"github.com/meridian-studio/ms-go-billing/app/entity"
	"github.com/meridian-studio/ms-go-billing/app/types"
)

func CustomerToResponse(item *entity.Customer) *types.Customer {
	if item == nil {
		return nil
	}

	return &types.Customer{
		CustomerID:     item.CustomerID,
		InternalUserID: derefString(item.InternalUserID),
		Email:          item.Email,
		DisplayName:    item.DisplayName,
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func SubscriptionToResponse(item *entity.Subscription) *types.Subscription {
	if item == nil {
		return nil
	}

	return &types.Subscription{
		SubscriptionID: item.SubscriptionID,
		InternalUserID: item.InternalUserID,
		Status:         string(item.Status),
		Plan:           item.Plan,
		PriceID:        derefString(item.PriceID),
		PeriodStart:    formatTimePtr(item.PeriodStart),
		PeriodEnd:      formatTimePtr(item.PeriodEnd),
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentToResponse(item *entity.Payment) *types.Payment {
	if item == nil {
		return nil
	}

	return &types.Payment{
		ID:             item.ID,
		SessionID:      derefString(item.SessionID),
		CustomerID:     item.CustomerID,
		SubscriptionID: derefString(item.SubscriptionID),
		PriceID:        derefString(item.PriceID),
		AmountTotal:    item.AmountTotal,
		Currency:       item.Currency,
		Status:         item.Status,
		PeriodEnd:      formatTimePtr(item.PeriodEnd),
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.Payment {
	result := make([]*types.Payment, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTimePtr(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
