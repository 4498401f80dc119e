package gateway

import (
	"encoding/json"

	"github.com/mbeoliero/coursechat/pkg/errcode"
)

// WSRequest represents a frame sent by the client
type WSRequest struct {
	Event string          `json:"event"`
	ReqId string          `json:"reqId,omitempty"` // echoed back on the ack or error reply
	Data  json.RawMessage `json:"data,omitempty"`
}

// WSResponse represents a frame sent by the server
type WSResponse struct {
	Event   string      `json:"event"`
	ReqId   string      `json:"reqId,omitempty"`
	ErrCode int         `json:"errCode"`
	ErrMsg  string      `json:"errMsg,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ConversationReq carries the target of join, leave and typing events
type ConversationReq struct {
	ConversationId string `json:"conversationId"`
}

// SendMessageReq represents the send_message payload
type SendMessageReq struct {
	ConversationId string `json:"conversationId"`
	Content        string `json:"content"`
}

// TypingData is the payload of user_typing
type TypingData struct {
	ConversationId string `json:"conversationId"`
	UserId         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	IsTyping       bool   `json:"isTyping"`
}

// StatusChangeData is the payload of user_status_change
type StatusChangeData struct {
	UserId    string `json:"userId"`
	IsOnline  bool   `json:"isOnline"`
	Timestamp int64  `json:"timestamp"`
}

// PongData is the ack payload of ping
type PongData struct {
	ServerTime int64 `json:"serverTime"`
}

// EncodeEvent encodes a server pushed event frame
func EncodeEvent(event string, data interface{}) ([]byte, error) {
	return json.Marshal(WSResponse{Event: event, Data: data})
}

// encodeError encodes the error reply of a request
func encodeError(reqId string, err error) ([]byte, error) {
	e := errcode.From(err)
	return json.Marshal(WSResponse{Event: EventError, ReqId: reqId, ErrCode: e.Code, ErrMsg: e.Msg})
}

// decodeData unmarshals the payload of a request
func decodeData(req *WSRequest, v interface{}) error {
	if len(req.Data) == 0 {
		return errcode.ErrValidation.WithMsg("missing data")
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return errcode.ErrValidation.WithMsg("malformed data")
	}
	return nil
}
