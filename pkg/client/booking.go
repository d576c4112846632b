package client

import (
	"context"
	"net/url"

	"medibook/pkg/model"
)

type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(baseURL string) *BookingClient {
	return &BookingClient{httpClient: NewHttpClient(baseURL)}
}

func (c *BookingClient) As(userID, role string) *BookingClient {
	return &BookingClient{httpClient: c.httpClient.As(userID, role)}
}

func (c *BookingClient) HTTP() *HttpClient {
	return c.httpClient
}

func (c *BookingClient) Lock(ctx context.Context, req *model.LockRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings/lock", req)
}

func (c *BookingClient) Unlock(ctx context.Context, req *model.UnlockRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings/unlock", req)
}

func (c *BookingClient) Commit(ctx context.Context, req *model.CommitRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings/commit", req)
}

func (c *BookingClient) Cancel(ctx context.Context, token string) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings/cancel", &model.CancelRequest{CancellationToken: token})
}

func (c *BookingClient) CancelByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings/appointments/"+url.PathEscape(id)+"/cancel", nil)
}

func (c *BookingClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/appointments/"+url.PathEscape(id))
}

func (c *BookingClient) DecodeAppointment(resp *Response) (*model.Appointment, error) {
	var appt model.Appointment
	if err := resp.DecodeData(&appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (c *BookingClient) DecodeLock(resp *Response) (*model.LockResult, error) {
	var result model.LockResult
	if err := resp.DecodeData(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
