// Package provider implements the flight-status provider client.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"flightwatch-service/internal/domain/entity"
	"flightwatch-service/internal/domain/repository"
	"flightwatch-service/pkg/logger"

	"golang.org/x/oauth2/clientcredentials"
)

const sourceTag = "aerodata"

// AeroDataClient fetches flight status snapshots over HTTP with OAuth2
// client-credentials auth
type AeroDataClient struct {
	logger  logger.Logger
	client  *http.Client
	baseURL string
}

// NewAeroDataClient creates a new provider client. The http client carries
// the token source and a bounded timeout so a stuck provider cannot stall a
// whole tick.
func NewAeroDataClient(ctx context.Context, baseURL, tokenURL, clientID, clientSecret string, timeout time.Duration, logger logger.Logger) repository.FlightStatusRepository {
	oauthConfig := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}

	client := oauthConfig.Client(ctx)
	client.Timeout = timeout

	return &AeroDataClient{
		logger:  logger,
		client:  client,
		baseURL: baseURL,
	}
}

// flightStatusResponse mirrors the provider's wire format
type flightStatusResponse struct {
	Data []struct {
		FlightNumber string `json:"flight_number"`
		FlightDate   string `json:"flight_date"`
		Status       string `json:"status"`
		Departure    struct {
			Gate      string     `json:"gate"`
			Terminal  string     `json:"terminal"`
			Estimated *time.Time `json:"estimated"`
			Actual    *time.Time `json:"actual"`
		} `json:"departure"`
		Arrival struct {
			Gate      string     `json:"gate"`
			Terminal  string     `json:"terminal"`
			Estimated *time.Time `json:"estimated"`
			Actual    *time.Time `json:"actual"`
		} `json:"arrival"`
	} `json:"data"`
}

// FetchStatus fetches the current status for a flight within the date range
func (c *AeroDataClient) FetchStatus(ctx context.Context, flightNumber string, dateFrom, dateTo time.Time) (*entity.FlightSnapshot, error) {
	query := url.Values{}
	query.Set("flight_number", flightNumber)
	query.Set("date_from", dateFrom.UTC().Format("2006-01-02"))
	query.Set("date_to", dateTo.UTC().Format("2006-01-02"))

	reqURL := fmt.Sprintf("%s/v1/flights?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, &entity.ProviderError{Message: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &entity.ProviderError{Message: err.Error()}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &entity.ProviderError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &entity.ProviderError{StatusCode: resp.StatusCode, Message: string(rawBody)}
	}

	var parsed flightStatusResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, &entity.ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode failed: %v", err)}
	}

	if len(parsed.Data) == 0 {
		return nil, &entity.ProviderError{StatusCode: resp.StatusCode, Message: "no flight data in response"}
	}

	flight := parsed.Data[0]
	snapshot := &entity.FlightSnapshot{
		FlightNumber:      flight.FlightNumber,
		FlightDate:        flight.FlightDate,
		Status:            flight.Status,
		DepartureGate:     flight.Departure.Gate,
		DepartureTerminal: flight.Departure.Terminal,
		ArrivalGate:       flight.Arrival.Gate,
		ArrivalTerminal:   flight.Arrival.Terminal,
		EstDeparture:      flight.Departure.Estimated,
		ActDeparture:      flight.Departure.Actual,
		EstArrival:        flight.Arrival.Estimated,
		ActArrival:        flight.Arrival.Actual,
		RawPayload:        rawBody,
		Source:            sourceTag,
		RecordedAt:        time.Now(),
	}

	c.logger.Debug("Fetched flight status",
		"flightNumber", flightNumber,
		"status", flight.Status)

	return snapshot, nil
}
