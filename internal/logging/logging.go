// Package logging writes one JSON line per checkout step.
package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service        string `json:"service"`
	CheckoutID     string `json:"checkout_id,omitempty"`
	ReceiptNumber  string `json:"receipt_number,omitempty"`
	Step           string `json:"step,omitempty"`
	SubTransaction string `json:"sub_transaction,omitempty"`
	Status         string `json:"status,omitempty"`
	DurationMS     int64  `json:"duration_ms,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Log writes fields as a single JSON object through the standard logger.
func Log(fields Fields) {
	payload := map[string]any{
		"service":         fields.Service,
		"checkout_id":     fields.CheckoutID,
		"receipt_number":  fields.ReceiptNumber,
		"step":            fields.Step,
		"sub_transaction": fields.SubTransaction,
		"status":          fields.Status,
		"duration_ms":     fields.DurationMS,
		"message":         fields.Message,
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Service, err.Error())
		return
	}
	log.Print(string(data))
}
