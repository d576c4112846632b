package client

import (
	"context"
	"net/url"
	"strconv"

	"medibook/pkg/model"
)

type AvailabilityClient struct {
	httpClient *HttpClient
}

func NewAvailabilityClient(baseURL string) *AvailabilityClient {
	return &AvailabilityClient{httpClient: NewHttpClient(baseURL)}
}

func (c *AvailabilityClient) As(userID, role string) *AvailabilityClient {
	return &AvailabilityClient{httpClient: c.httpClient.As(userID, role)}
}

func (c *AvailabilityClient) HTTP() *HttpClient {
	return c.httpClient
}

// Query lists slots of practitionerID (all practitioners when empty)
// for a single date or an inclusive from/to range.
func (c *AvailabilityClient) Query(ctx context.Context, practitionerID string, q *model.AvailabilityQuery) (*Response, error) {
	path := "/api/v1/availability/slots"
	if practitionerID != "" {
		path += "/" + url.PathEscape(practitionerID)
	}

	values := url.Values{}
	if q.Date != "" {
		values.Set("date", q.Date)
	}
	if q.From != "" {
		values.Set("from", q.From)
	}
	if q.To != "" {
		values.Set("to", q.To)
	}
	if q.AvailableOnly {
		values.Set("available_only", strconv.FormatBool(true))
	}
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return c.httpClient.GET(ctx, path)
}

func (c *AvailabilityClient) Create(ctx context.Context, req *model.SlotCreateRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/availability/slots", req)
}

func (c *AvailabilityClient) CreateRecurring(ctx context.Context, req *model.RecurrenceRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/availability/slots/recurring", req)
}

func (c *AvailabilityClient) Generate(ctx context.Context, req *model.WorkingHoursRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/availability/slots/generate", req)
}

func (c *AvailabilityClient) Update(ctx context.Context, id string, update *model.SlotUpdate) (*Response, error) {
	return c.httpClient.PATCH(ctx, "/api/v1/availability/slots/"+url.PathEscape(id), update)
}

func (c *AvailabilityClient) Delete(ctx context.Context, id string, force bool) (*Response, error) {
	path := "/api/v1/availability/slots/" + url.PathEscape(id)
	if force {
		path += "?force=true"
	}
	return c.httpClient.DELETE(ctx, path)
}

func (c *AvailabilityClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/slots/"+url.PathEscape(id))
}

func (c *AvailabilityClient) DecodeSlots(resp *Response) ([]*model.SlotView, error) {
	var slots []*model.SlotView
	if err := resp.DecodeData(&slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *AvailabilityClient) DecodeSlot(resp *Response) (*model.AvailabilitySlot, error) {
	var slot model.AvailabilitySlot
	if err := resp.DecodeData(&slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

func (c *AvailabilityClient) DecodeGeneration(resp *Response) (*model.GenerationResult, error) {
	var result model.GenerationResult
	if err := resp.DecodeData(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
