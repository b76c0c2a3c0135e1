// Package mpesa talks to the Vodacom Mozambique M-Pesa C2B API.
package mpesa

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aldoetobex/falacomigo-backend/pkg/apperr"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

// SuccessCode is the provider response code for an accepted request.
const SuccessCode = "INS-0"

const (
	c2bPath   = "/ipg/v1x/c2bPayment/singleStage/"
	queryPath = "/ipg/v1x/queryTransactionStatus/"
)

var (
	ErrInvalidPhone       = apperr.InvalidInput("INVALID_PHONE", "phone number is not an M-Pesa (Vodacom 84/85) number")
	ErrInvalidAmount      = apperr.InvalidInput("INVALID_AMOUNT", "amount must be positive")
	ErrGatewayUnavailable = apperr.New(apperr.KindGatewayUnavailable, "GATEWAY_UNAVAILABLE", "payment provider unavailable")
)

type Config struct {
	BaseURL             string
	APIKey              string
	PublicKey           string
	ServiceProviderCode string
	Timeout             time.Duration
	// Simulate answers locally without network access (sandbox/dev).
	Simulate bool
}

// InitiateResult is what the provider told us about a new C2B request.
type InitiateResult struct {
	TransactionID  string
	ConversationID string
	MSISDN         string
	Status         models.PaymentStatus
	Message        string
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
	now  func() time.Time
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
		now:  time.Now,
	}
}

/* ============================== Initiate ================================ */

// Initiate asks the provider to push a C2B payment prompt to phone. Nothing is
// sent when the phone or amount is invalid.
func (c *Client) Initiate(ctx context.Context, phone string, amount decimal.Decimal, reference string) (*InitiateResult, error) {
	msisdn, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	txID := NewTransactionID(c.now())

	if c.cfg.Simulate {
		c.log.Info("mpesa simulate initiate", zap.String("transaction_id", txID), zap.String("msisdn", msisdn))
		return &InitiateResult{
			TransactionID:  txID,
			ConversationID: "SIM-" + txID,
			MSISDN:         msisdn,
			Status:         models.PaymentPending,
			Message:        "Pedido de pagamento enviado (simulação)",
		}, nil
	}

	body := map[string]string{
		"input_TransactionReference": reference,
		"input_CustomerMSISDN":       msisdn,
		"input_Amount":               amount.StringFixed(2),
		"input_ThirdPartyReference":  txID,
		"input_ServiceProviderCode":  c.cfg.ServiceProviderCode,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal c2b request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c2bPath, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build c2b request")
	}
	if err := c.setHeaders(req); err != nil {
		return nil, err
	}

	var out providerResponse
	status, err := c.do(req, &out)
	if err != nil {
		return nil, err
	}

	if (status != http.StatusCreated && status != http.StatusOK) || (out.ResponseCode != "" && out.ResponseCode != SuccessCode) {
		msg := out.ResponseDesc
		if msg == "" {
			msg = fmt.Sprintf("provider returned HTTP %d", status)
		}
		c.log.Warn("mpesa initiate rejected",
			zap.Int("status", status),
			zap.String("code", out.ResponseCode),
			zap.String("transaction_id", txID),
		)
		return nil, ErrGatewayUnavailable.WithMessage("payment provider rejected the request: " + msg)
	}

	return &InitiateResult{
		TransactionID:  txID,
		ConversationID: out.ConversationID,
		MSISDN:         msisdn,
		Status:         models.PaymentPending,
		Message:        out.ResponseDesc,
	}, nil
}

/* ============================ CheckStatus =============================== */

// CheckStatus queries the provider for a transaction we initiated.
func (c *Client) CheckStatus(ctx context.Context, transactionID string) (models.PaymentStatus, error) {
	if c.cfg.Simulate {
		// sandbox payments are always accepted once queried
		return models.PaymentConfirmed, nil
	}

	q := url.Values{}
	q.Set("input_QueryReference", transactionID)
	q.Set("input_ThirdPartyReference", transactionID)
	q.Set("input_ServiceProviderCode", c.cfg.ServiceProviderCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+queryPath+"?"+q.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(err, "build query request")
	}
	if err := c.setHeaders(req); err != nil {
		return "", err
	}

	var out providerResponse
	status, err := c.do(req, &out)
	if err != nil {
		return "", err
	}
	if status >= http.StatusInternalServerError {
		return "", ErrGatewayUnavailable.WithMessage(fmt.Sprintf("payment provider returned HTTP %d", status))
	}
	if status >= http.StatusBadRequest {
		return models.PaymentPending, nil
	}
	return mapTransactionStatus(out), nil
}

func mapTransactionStatus(out providerResponse) models.PaymentStatus {
	switch strings.ToLower(out.TransactionStatus) {
	case "completed", "successful", "success":
		return models.PaymentConfirmed
	case "failed", "cancelled", "expired", "declined":
		return models.PaymentFailed
	}
	if out.TransactionStatus == "" && out.ResponseCode == SuccessCode {
		return models.PaymentConfirmed
	}
	return models.PaymentPending
}

/* =============================== Helpers ================================ */

type providerResponse struct {
	ResponseCode      string `json:"output_ResponseCode"`
	ResponseDesc      string `json:"output_ResponseDesc"`
	TransactionID     string `json:"output_TransactionID"`
	ConversationID    string `json:"output_ConversationID"`
	ThirdPartyRef     string `json:"output_ThirdPartyReference"`
	TransactionStatus string `json:"output_ResponseTransactionStatus"`
}

func (c *Client) do(req *http.Request, out any) (int, error) {
	res, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("mpesa request failed", zap.String("path", req.URL.Path), zap.Error(err))
		return 0, ErrGatewayUnavailable.WithCause(err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return 0, ErrGatewayUnavailable.WithCause(err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		// error bodies are not always JSON; the status code still decides
		_ = json.Unmarshal(data, out)
	}
	return res.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request) error {
	token, err := c.bearer()
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Origin", "*")
	return nil
}

// bearer encrypts the API key with the provider's RSA public key. Without a
// public key the raw API key is sent, which is what local fakes expect.
func (c *Client) bearer() (string, error) {
	if c.cfg.PublicKey == "" {
		return c.cfg.APIKey, nil
	}
	pemKey := c.cfg.PublicKey
	if !strings.Contains(pemKey, "BEGIN PUBLIC KEY") {
		pemKey = "-----BEGIN PUBLIC KEY-----\n" + pemKey + "\n-----END PUBLIC KEY-----"
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return "", errors.Wrap(err, "parse mpesa public key")
	}
	enc, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(c.cfg.APIKey))
	if err != nil {
		return "", errors.Wrap(err, "encrypt mpesa api key")
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}

// NewTransactionID returns our payment reference: VM, a UTC timestamp and six
// random hex digits.
func NewTransactionID(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return "VM" + now.UTC().Format("20060102150405") + strings.ToUpper(hex.EncodeToString(b))
}
