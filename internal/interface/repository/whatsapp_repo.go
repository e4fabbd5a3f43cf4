package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"flightwatch-service/internal/domain/entity"
	"flightwatch-service/internal/domain/repository"
	"flightwatch-service/pkg/logger"
)

// WhatsappRepository sends templated messages through the WhatsApp service
type WhatsappRepository struct {
	logger      logger.Logger
	client      *http.Client
	baseURL     string
	bearerToken string
	companyID   string
	agentID     string
}

// NewWhatsappRepository creates a new WhatsApp repository
func NewWhatsappRepository(baseURL, bearerToken, companyID, agentID string, logger logger.Logger) repository.MessengerRepository {
	if baseURL == "" {
		baseURL = "https://whatsapp-service.daisi.dev"
	}

	return &WhatsappRepository{
		logger:      logger,
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		bearerToken: bearerToken,
		companyID:   companyID,
		agentID:     agentID,
	}
}

type sendTemplateRequest struct {
	CompanyID   string            `json:"companyId"`
	AgentID     string            `json:"agentId"`
	PhoneNumber string            `json:"phoneNumber"`
	TemplateID  string            `json:"templateId"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// SendTemplate delivers a templated message and returns the channel message id
func (r *WhatsappRepository) SendTemplate(ctx context.Context, recipient, templateID string, variables map[string]string) (string, error) {
	body := sendTemplateRequest{
		CompanyID:   r.companyID,
		AgentID:     r.agentID,
		PhoneNumber: recipient,
		TemplateID:  templateID,
		Variables:   variables,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", &entity.TransportError{Code: "marshal_failed", Message: err.Error(), Retryable: false}
	}

	url := fmt.Sprintf("%s/api/v1/messages/send-template", r.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", &entity.TransportError{Code: "request_failed", Message: err.Error(), Retryable: false}
	}

	req.Header.Set("Authorization", "Bearer "+r.bearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		// Network failures and timeouts are worth another attempt
		return "", &entity.TransportError{Code: "network_error", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errorBody struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errorBody)

		return "", &entity.TransportError{
			StatusCode: resp.StatusCode,
			Code:       errorBody.Error.Code,
			Message:    errorBody.Error.Message,
			Retryable:  isRetryableStatus(resp.StatusCode),
		}
	}

	var response struct {
		Success bool `json:"success"`
		Data    struct {
			MessageID string `json:"messageId"`
			Status    string `json:"status"`
		} `json:"data"`
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", &entity.TransportError{Code: "decode_failed", Message: err.Error(), Retryable: true}
	}

	if !response.Success {
		return "", &entity.TransportError{
			StatusCode: resp.StatusCode,
			Code:       response.Error.Code,
			Message:    response.Error.Message,
			Retryable:  false,
		}
	}

	r.logger.Info("Message sent",
		"messageId", response.Data.MessageID,
		"phone", recipient,
		"templateId", templateID)

	return response.Data.MessageID, nil
}

// isRetryableStatus classifies HTTP statuses: timeouts, rate limits and
// server errors can succeed later; other client errors cannot.
func isRetryableStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}
