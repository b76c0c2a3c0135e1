package mpesa

import (
	"encoding/json"
	"strings"

	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

// WebhookResult is the normalized content of a provider callback.
type WebhookResult struct {
	// TransactionID is our reference (ThirdPartyReference), falling back to
	// the provider's transaction id when the reference is missing.
	TransactionID         string
	ProviderTransactionID string
	Status                models.PaymentStatus
	Description           string
	Valid                 bool
}

type callback struct {
	ResponseCode  string `json:"output_ResponseCode"`
	ResponseDesc  string `json:"output_ResponseDesc"`
	TransactionID string `json:"output_TransactionID"`
	ThirdPartyRef string `json:"output_ThirdPartyReference"`
}

// ParseWebhook decodes a callback body. Payloads that cannot be read, or that
// name no transaction, come back with Valid=false and Status failed.
func ParseWebhook(body []byte) WebhookResult {
	var cb callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return WebhookResult{Status: models.PaymentFailed, Description: "unparseable callback"}
	}

	res := WebhookResult{
		TransactionID:         strings.TrimSpace(cb.ThirdPartyRef),
		ProviderTransactionID: strings.TrimSpace(cb.TransactionID),
		Description:           cb.ResponseDesc,
		Status:                models.PaymentFailed,
	}
	if res.TransactionID == "" {
		res.TransactionID = res.ProviderTransactionID
	}
	res.Valid = res.TransactionID != ""

	if res.Valid && cb.ResponseCode == SuccessCode {
		res.Status = models.PaymentConfirmed
	}
	return res
}
