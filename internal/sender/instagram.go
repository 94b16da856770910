package sender

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/jwalitptl/broadcast-engine/internal/model"
)

// InstagramSender delivers Instagram Direct messages. The wire format
// is the Messenger Send API with Instagram-scoped user ids; ExternalID
// is the professional account id.
type InstagramSender struct {
	client *resty.Client
	conn   *model.Connection
}

func NewInstagramSender(client *resty.Client, conn *model.Connection) *InstagramSender {
	return &InstagramSender{client: client, conn: conn}
}

func (s *InstagramSender) Send(ctx context.Context, recipient string, msg Message) (*Result, error) {
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

	var igResp messengerResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.conn.AccessToken).
		SetBody(req).
		SetResult(&igResp).
		SetError(&igResp).
		Post(fmt.Sprintf("/%s/messages", s.conn.ExternalID))
	if err != nil {
		return nil, newSendError("instagram request failed", err)
	}

	if resp.StatusCode() != http.StatusOK {
		reason := fmt.Sprintf("instagram rejected send (status %d)", resp.StatusCode())
		if igResp.Error != nil {
			reason = fmt.Sprintf("instagram rejected send: %s (code %d)", igResp.Error.Message, igResp.Error.Code)
		}
		return nil, newSendError(reason, nil)
	}

	if igResp.MessageID == "" {
		return nil, newSendError("instagram response missing message id", nil)
	}
	return &Result{MessageID: igResp.MessageID}, nil
}
