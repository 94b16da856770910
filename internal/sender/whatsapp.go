package sender

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/jwalitptl/broadcast-engine/internal/model"
)

// WhatsApp Cloud API request/response shapes. Only the fields the
// engine needs are modelled.
type whatsAppRequest struct {
	MessagingProduct string             `json:"messaging_product"`
	To               string             `json:"to"`
	Type             string             `json:"type"`
	Text             *whatsAppText      `json:"text,omitempty"`
	Image            *whatsAppImage     `json:"image,omitempty"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppImage struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type whatsAppResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *graphError `json:"error,omitempty"`
}

// graphError is the Meta Graph API error envelope, shared by all three
// channel adapters.
type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// WhatsAppSender sends to phone numbers through the tenant's WhatsApp
// Business connection. ExternalID is the phone-number id.
type WhatsAppSender struct {
	client *resty.Client
	conn   *model.Connection
}

func NewWhatsAppSender(client *resty.Client, conn *model.Connection) *WhatsAppSender {
	return &WhatsAppSender{client: client, conn: conn}
}

func (s *WhatsAppSender) Send(ctx context.Context, recipient string, msg Message) (*Result, error) {
	req := whatsAppRequest{
		MessagingProduct: "whatsapp",
		To:               recipient,
	}
	if msg.MediaURL != "" {
		req.Type = "image"
		req.Image = &whatsAppImage{Link: msg.MediaURL, Caption: msg.Text}
	} else {
		req.Type = "text"
		req.Text = &whatsAppText{Body: msg.Text}
	}

	var waResp whatsAppResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.conn.AccessToken).
		SetBody(req).
		SetResult(&waResp).
		SetError(&waResp).
		Post(fmt.Sprintf("/%s/messages", s.conn.ExternalID))
	if err != nil {
		return nil, newSendError("whatsapp request failed", err)
	}

	if resp.StatusCode() != http.StatusOK {
		reason := fmt.Sprintf("whatsapp rejected send (status %d)", resp.StatusCode())
		if waResp.Error != nil {
			reason = fmt.Sprintf("whatsapp rejected send: %s (code %d)", waResp.Error.Message, waResp.Error.Code)
		}
		return nil, newSendError(reason, nil)
	}

	if len(waResp.Messages) == 0 {
		return nil, newSendError("whatsapp response missing message id", nil)
	}
	return &Result{MessageID: waResp.Messages[0].ID}, nil
}
