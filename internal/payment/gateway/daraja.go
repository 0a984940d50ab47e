package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL         = "https://sandbox.safaricom.co.ke"
	defaultTransactionType = "CustomerPayBillOnline"
	defaultCommandID       = "BusinessPayment"
	stkTimestampLayout     = "20060102150405"
	responseCodeAccepted   = "0"
)

// Options configures the Daraja-style gateway client
type Options struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	PassKey            string
	InitiatorName      string
	SecurityCredential string
	CallbackURL        string
	ResultURL          string
	TimeoutURL         string
	TransactionType    string
	CommandID          string
	RequestTimeout     time.Duration
	HTTPClient         *http.Client
	Logger             *slog.Logger
}

// Daraja issues STK push collections and B2C disbursements
type Daraja struct {
	opts       Options
	baseURL    string
	httpClient *http.Client
	tokens     *tokenSource
	logger     *slog.Logger
	now        func() time.Time
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type b2cRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   int64  `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occasion                 string `json:"Occasion"`
}

type b2cResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// NewDaraja constructs a client with defaults for unset options
func NewDaraja(opts Options) (*Daraja, error) {
	if opts.ConsumerKey == "" || opts.ConsumerSecret == "" {
		return nil, ErrMissingCredentials
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.TransactionType == "" {
		opts.TransactionType = defaultTransactionType
	}
	if opts.CommandID == "" {
		opts.CommandID = defaultCommandID
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daraja{
		opts:       opts,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
	d.tokens = &tokenSource{
		baseURL:    baseURL,
		key:        opts.ConsumerKey,
		secret:     opts.ConsumerSecret,
		httpClient: httpClient,
		now:        func() time.Time { return d.now() },
	}

	return d, nil
}

// Collect sends an STK push to the payer's handset
func (d *Daraja) Collect(ctx context.Context, req CollectRequest) (*CollectResponse, error) {
	timestamp := d.now().Format(stkTimestampLayout)
	password := base64.StdEncoding.EncodeToString([]byte(d.opts.ShortCode + d.opts.PassKey + timestamp))

	description := req.Description
	if description == "" {
		description = "Payment " + req.Reference
	}

	body := stkPushRequest{
		BusinessShortCode: d.opts.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   d.opts.TransactionType,
		Amount:            req.Amount,
		PartyA:            req.PayerAddress,
		PartyB:            d.opts.ShortCode,
		PhoneNumber:       req.PayerAddress,
		CallBackURL:       d.opts.CallbackURL,
		AccountReference:  req.Reference,
		TransactionDesc:   description,
	}

	var resp stkPushResponse
	if err := d.post(ctx, "/mpesa/stkpush/v1/processrequest", body, &resp); err != nil {
		return nil, fmt.Errorf("stk push: %w", err)
	}
	if resp.ResponseCode != responseCodeAccepted || resp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: stk push response %s: %s", ErrRejected, resp.ResponseCode, resp.ResponseDescription)
	}

	d.logger.Info("Collection accepted by gateway",
		slog.String("correlation_id", resp.CheckoutRequestID),
		slog.String("merchant_request_id", resp.MerchantRequestID),
		slog.String("reference", req.Reference),
	)

	return &CollectResponse{
		CorrelationID:     resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// Disburse sends a B2C payment to the payee
func (d *Daraja) Disburse(ctx context.Context, req DisburseRequest) (*DisburseResponse, error) {
	remarks := req.Remarks
	if remarks == "" {
		remarks = "Payout " + req.Reference
	}

	body := b2cRequest{
		OriginatorConversationID: uuid.NewString(),
		InitiatorName:            d.opts.InitiatorName,
		SecurityCredential:       d.opts.SecurityCredential,
		CommandID:                d.opts.CommandID,
		Amount:                   req.Amount,
		PartyA:                   d.opts.ShortCode,
		PartyB:                   req.PayeeAddress,
		Remarks:                  remarks,
		QueueTimeOutURL:          d.opts.TimeoutURL,
		ResultURL:                d.opts.ResultURL,
		Occasion:                 req.Reference,
	}

	var resp b2cResponse
	if err := d.post(ctx, "/mpesa/b2c/v3/paymentrequest", body, &resp); err != nil {
		return nil, fmt.Errorf("b2c payment: %w", err)
	}
	if resp.ResponseCode != responseCodeAccepted || resp.ConversationID == "" {
		return nil, fmt.Errorf("%w: b2c response %s: %s", ErrRejected, resp.ResponseCode, resp.ResponseDescription)
	}

	d.logger.Info("Disbursement accepted by gateway",
		slog.String("correlation_id", resp.ConversationID),
		slog.String("originator_conversation_id", resp.OriginatorConversationID),
		slog.String("reference", req.Reference),
	)

	return &DisburseResponse{
		CorrelationID:            resp.ConversationID,
		OriginatorConversationID: resp.OriginatorConversationID,
	}, nil
}

// post sends an authorized JSON request and decodes a 2xx response into out
func (d *Daraja) post(ctx context.Context, path string, in, out any) error {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		d.tokens.invalidate()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && er.ErrorCode != "" {
			return fmt.Errorf("%w: status %d: %s %s", ErrRejected, resp.StatusCode, er.ErrorCode, er.ErrorMessage)
		}
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
