package sender

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/jwalitptl/broadcast-engine/internal/model"
)

type messengerRequest struct {
	Recipient messengerRecipient `json:"recipient"`
	Message   messengerMessage   `json:"message"`
}

type messengerRecipient struct {
	ID string `json:"id"`
}

type messengerMessage struct {
	Text       string               `json:"text,omitempty"`
	Attachment *messengerAttachment `json:"attachment,omitempty"`
}

type messengerAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

type messengerResponse struct {
	RecipientID string      `json:"recipient_id"`
	MessageID   string      `json:"message_id"`
	Error       *graphError `json:"error,omitempty"`
}

// FacebookSender delivers through the Messenger Send API. Recipients
// are page-scoped user ids; ExternalID is the page id.
type FacebookSender struct {
	client *resty.Client
	conn   *model.Connection
}

func NewFacebookSender(client *resty.Client, conn *model.Connection) *FacebookSender {
	return &FacebookSender{client: client, conn: conn}
}

func (s *FacebookSender) Send(ctx context.Context, recipient string, msg Message) (*Result, error) {
	req := messengerRequest{
		Recipient: messengerRecipient{ID: recipient},
	}
	if msg.MediaURL != "" {
		att := &messengerAttachment{Type: "image"}
		att.Payload.URL = msg.MediaURL
		req.Message = messengerMessage{Attachment: att}
	} else {
		req.Message = messengerMessage{Text: msg.Text}
	}

	var fbResp messengerResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("access_token", s.conn.AccessToken).
		SetBody(req).
		SetResult(&fbResp).
		SetError(&fbResp).
		Post(fmt.Sprintf("/%s/messages", s.conn.ExternalID))
	if err != nil {
		return nil, newSendError("messenger request failed", err)
	}

	if resp.StatusCode() != http.StatusOK {
		reason := fmt.Sprintf("messenger rejected send (status %d)", resp.StatusCode())
		if fbResp.Error != nil {
			reason = fmt.Sprintf("messenger rejected send: %s (code %d)", fbResp.Error.Message, fbResp.Error.Code)
		}
		return nil, newSendError(reason, nil)
	}

	if fbResp.MessageID == "" {
		return nil, newSendError("messenger response missing message id", nil)
	}
	return &Result{MessageID: fbResp.MessageID}, nil
}
