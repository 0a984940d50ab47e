package dto

type CollectRequest struct {
	JobID        string `json:"jobId" binding:"required"`
	Amount       int64  `json:"amount"`
	PayerAddress string `json:"payerAddress" binding:"required"`
	Reference    string `json:"reference"`
}

type CollectResponse struct {
	JobID           string `json:"jobId"`
	CorrelationID   string `json:"correlationId"`
	SessionToken    string `json:"sessionToken,omitempty"`
	Status          string `json:"status"`
	CustomerMessage string `json:"customerMessage,omitempty"`
}

type SessionResponse struct {
	JobID          string `json:"jobId"`
	CorrelationID  string `json:"correlationId"`
	Status         string `json:"status"`
	Pending        bool   `json:"pending"`
	PaymentReceipt string `json:"paymentReceipt,omitempty"`
	FailureReason  string `json:"failureReason,omitempty"`
}

type DisburseRequest struct {
	JobID       string `json:"jobId" binding:"required"`
	InitiatedBy string `json:"initiatedBy" binding:"required"`
}

type DisburseResponse struct {
	JobID         string `json:"jobId"`
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
}

// WebhookAck is the body every parsed gateway webhook receives
type WebhookAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Accepted acknowledges a webhook
var Accepted = WebhookAck{ResultCode: 0, ResultDesc: "Accepted"}
