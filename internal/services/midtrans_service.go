package services

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"siakad_payment_echo/internal/models"
)

// Gateway is the contract the payment orchestrator has with the payment gateway
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CheckStatus(ctx context.Context, orderID string) (*GatewayStatusResult, error)
	VerifyNotification(n *MidtransNotification) bool
}

// ChargeItem is one line of the charge, shown to the payer on the gateway page
type ChargeItem struct {
	ID    string
	Name  string
	Price int64
}

// ChargeRequest is everything needed to open one charge attempt at the gateway
type ChargeRequest struct {
	OrderID     string
	Method      models.PaymentMethod
	GrossAmount int64
	PaymentCode string
	Semester    string
	Items       []ChargeItem

	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// ChargeResult is the synchronous answer of the gateway to a charge
type ChargeResult struct {
	OrderID           string
	TransactionID     string
	TransactionStatus TransactionStatus

	PaymentURL           string
	VirtualAccountNumber string
	BillKey              string
	BillerCode           string
}

// GatewayStatusResult is the gateway's current view of an order
type GatewayStatusResult struct {
	OrderID           string
	TransactionID     string
	TransactionStatus TransactionStatus
	FraudStatus       string
}

// MidtransNotification is the HTTP notification body Midtrans posts to the webhook
type MidtransNotification struct {
	OrderID           string            `json:"order_id"`
	StatusCode        string            `json:"status_code"`
	GrossAmount       string            `json:"gross_amount"`
	SignatureKey      string            `json:"signature_key"`
	TransactionStatus TransactionStatus `json:"transaction_status"`
	TransactionID     string            `json:"transaction_id"`
	FraudStatus       string            `json:"fraud_status"`
	PaymentType       string            `json:"payment_type"`
	TransactionTime   string            `json:"transaction_time"`
}

// ParseNotification decodes a raw notification body
func ParseNotification(body []byte) (*MidtransNotification, error) {
	var n MidtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("invalid notification payload: %w", err)
	}
	return &n, nil
}

type coreAPI interface {
	ChargeTransaction(req *coreapi.ChargeReq) (*coreapi.ChargeResponse, *midtrans.Error)
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// MidtransConfig configures the Midtrans clients
type MidtransConfig struct {
	ServerKey    string
	ClientKey    string
	IsProduction bool
	// DefaultBank is the bank used for bank_transfer charges. "mandiri" switches
	// to the Mandiri bill payment (echannel) flow.
	DefaultBank string
	// FinishURL is where the payer is sent back after a redirect flow
	FinishURL string
}

type MidtransService struct {
	SnapClient snapAPI
	CoreClient coreAPI

	serverKey   string
	defaultBank midtrans.Bank
	finishURL   string
}

func NewMidtransService(cfg MidtransConfig) *MidtransService {
	env := midtrans.Sandbox
	if cfg.IsProduction {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(cfg.ServerKey, env)

	var c coreapi.Client
	c.New(cfg.ServerKey, env)

	// Set Default Options
	midtrans.ServerKey = cfg.ServerKey
	midtrans.ClientKey = cfg.ClientKey
	midtrans.Environment = env

	bank := midtrans.Bank(strings.ToLower(cfg.DefaultBank))
	if bank == "" {
		bank = midtrans.BankBni
	}

	return &MidtransService{
		SnapClient:  &s,
		CoreClient:  &c,
		serverKey:   cfg.ServerKey,
		defaultBank: bank,
		finishURL:   cfg.FinishURL,
	}
}

// Charge opens a charge at Midtrans. Bank transfer and e-wallet go through the
// Core API so the virtual account or deeplink is known right away; credit card
// goes through Snap because card data has to be entered on the gateway page.
func (s *MidtransService) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "charge", Message: err.Error(), Err: err}
	}
	if req.GrossAmount <= 0 {
		return nil, &GatewayError{Op: "charge", Message: "gross amount must be positive"}
	}

	switch req.Method {
	case models.PaymentMethodCreditCard:
		return s.chargeSnap(req)
	case models.PaymentMethodBankTransfer, models.PaymentMethodEWallet:
		return s.chargeCore(req)
	default:
		return nil, &GatewayError{Op: "charge", Message: fmt.Sprintf("unsupported payment method %q", req.Method)}
	}
}

func (s *MidtransService) chargeCore(req ChargeRequest) (*ChargeResult, error) {
	charge := s.BuildCoreCharge(req)

	resp, mErr := s.CoreClient.ChargeTransaction(charge)
	if mErr != nil {
		return nil, newGatewayError("charge", mErr)
	}
	if resp == nil {
		return nil, &GatewayError{Op: "charge", Message: "empty response"}
	}
	if isErrorStatusCode(resp.StatusCode) {
		return nil, &GatewayError{Op: "charge", Message: resp.StatusMessage, StatusCode: atoiSafe(resp.StatusCode)}
	}

	log.Printf("Midtrans charge created: order=%s transaction=%s status=%s", resp.OrderID, resp.TransactionID, resp.TransactionStatus)
	return chargeResultFromCore(req.OrderID, resp), nil
}

func (s *MidtransService) chargeSnap(req ChargeRequest) (*ChargeResult, error) {
	snapReq := s.BuildSnapRequest(req)

	resp, mErr := s.SnapClient.CreateTransaction(snapReq)
	if mErr != nil {
		return nil, newGatewayError("snap", mErr)
	}
	if resp == nil || resp.RedirectURL == "" {
		msg := "empty snap response"
		if resp != nil && len(resp.ErrorMessages) > 0 {
			msg = strings.Join(resp.ErrorMessages, "; ")
		}
		return nil, &GatewayError{Op: "snap", Message: msg}
	}

	log.Printf("Midtrans snap transaction created: order=%s", req.OrderID)
	// Snap only creates the transaction once the payer picks a channel
	return &ChargeResult{
		OrderID:           req.OrderID,
		TransactionStatus: TransactionStatusPending,
		PaymentURL:        resp.RedirectURL,
	}, nil
}

// BuildCoreCharge builds the method specific Core API charge payload
func (s *MidtransService) BuildCoreCharge(req ChargeRequest) *coreapi.ChargeReq {
	charge := &coreapi.ChargeReq{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.GrossAmount,
		},
		CustomerDetails: customerDetails(req),
		Items:           itemDetails(req),
	}

	switch req.Method {
	case models.PaymentMethodBankTransfer:
		if s.defaultBank == midtrans.BankMandiri {
			charge.PaymentType = coreapi.PaymentTypeEChannel
			charge.EChannel = &coreapi.EChannelDetail{
				BillInfo1: "Payment:",
				BillInfo2: truncate(strings.TrimSpace("Tuition "+req.PaymentCode+" "+req.Semester), 30),
			}
		} else {
			charge.PaymentType = coreapi.PaymentTypeBankTransfer
			charge.BankTransfer = &coreapi.BankTransferDetails{Bank: s.defaultBank}
		}
	case models.PaymentMethodEWallet:
		charge.PaymentType = coreapi.PaymentTypeGopay
		charge.Gopay = &coreapi.GopayDetails{
			EnableCallback: s.finishURL != "",
			CallbackUrl:    s.finishURL,
		}
	}
	return charge
}

// BuildSnapRequest builds a Snap request restricted to card payments
func (s *MidtransService) BuildSnapRequest(req ChargeRequest) *snap.Request {
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.GrossAmount,
		},
		CustomerDetail:  customerDetails(req),
		Items:           itemDetails(req),
		EnabledPayments: []snap.SnapPaymentType{snap.PaymentTypeCreditCard},
	}
	if s.finishURL != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: s.finishURL}
	}
	return snapReq
}

// CheckStatus asks Midtrans for the current status of an order
func (s *MidtransService) CheckStatus(ctx context.Context, orderID string) (*GatewayStatusResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "status", Message: err.Error(), Err: err}
	}

	resp, mErr := s.CoreClient.CheckTransaction(orderID)
	if mErr != nil {
		return nil, newGatewayError("status", mErr)
	}
	if resp == nil {
		return nil, &GatewayError{Op: "status", Message: "empty response"}
	}
	if isErrorStatusCode(resp.StatusCode) {
		return nil, &GatewayError{Op: "status", Message: resp.StatusMessage, StatusCode: atoiSafe(resp.StatusCode)}
	}

	return &GatewayStatusResult{
		OrderID:           resp.OrderID,
		TransactionID:     resp.TransactionID,
		TransactionStatus: TransactionStatus(resp.TransactionStatus),
		FraudStatus:       resp.FraudStatus,
	}, nil
}

// VerifyNotification checks signature_key = SHA512(order_id + status_code + gross_amount + server key).
// It never panics; any malformed input is a failed verification.
func (s *MidtransService) VerifyNotification(n *MidtransNotification) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Notification verification panicked: %v", r)
			ok = false
		}
	}()

	if n == nil || s.serverKey == "" {
		return false
	}
	if n.OrderID == "" || n.StatusCode == "" || n.GrossAmount == "" || n.SignatureKey == "" {
		return false
	}

	expected := NotificationSignature(n.OrderID, n.StatusCode, n.GrossAmount, s.serverKey)
	got := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// NotificationSignature computes the signature Midtrans attaches to notifications
func NotificationSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func chargeResultFromCore(orderID string, resp *coreapi.ChargeResponse) *ChargeResult {
	result := &ChargeResult{
		OrderID:           orderID,
		TransactionID:     resp.TransactionID,
		TransactionStatus: TransactionStatus(resp.TransactionStatus),
		BillKey:           resp.BillKey,
		BillerCode:        resp.BillerCode,
	}
	if resp.OrderID != "" {
		result.OrderID = resp.OrderID
	}

	switch {
	case len(resp.VaNumbers) > 0:
		result.VirtualAccountNumber = resp.VaNumbers[0].VANumber
	case resp.PermataVaNumber != "":
		result.VirtualAccountNumber = resp.PermataVaNumber
	}

	// GoPay answers with a list of actions; prefer the deeplink over the QR image
	for _, name := range []string{"deeplink-redirect", "generate-qr-code"} {
		for _, action := range resp.Actions {
			if action.Name == name && result.PaymentURL == "" {
				result.PaymentURL = action.URL
			}
		}
	}
	if result.PaymentURL == "" {
		result.PaymentURL = resp.RedirectURL
	}
	return result
}

func customerDetails(req ChargeRequest) *midtrans.CustomerDetails {
	return &midtrans.CustomerDetails{
		FName: req.CustomerName,
		Email: req.CustomerEmail,
		Phone: req.CustomerPhone,
	}
}

func itemDetails(req ChargeRequest) *[]midtrans.ItemDetails {
	if len(req.Items) == 0 {
		return &[]midtrans.ItemDetails{{
			ID:    req.PaymentCode,
			Name:  truncate("Tuition "+req.PaymentCode, 50),
			Price: req.GrossAmount,
			Qty:   1,
		}}
	}
	items := make([]midtrans.ItemDetails, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, midtrans.ItemDetails{
			ID:    it.ID,
			Name:  truncate(it.Name, 50),
			Price: it.Price,
			Qty:   1,
		})
	}
	return &items
}

func isErrorStatusCode(code string) bool {
	return strings.HasPrefix(code, "4") || strings.HasPrefix(code, "5")
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
