package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
	"github.com/gregLibert/smart-card-reader/pkg/session"
)

type slotRequest struct {
	Slot int `json:"slot"`
}

type transmitRequest struct {
	Slot int    `json:"slot"`
	APDU string `json:"apdu"`
}

type readFileRequest struct {
	Slot int    `json:"slot"`
	FID  string `json:"fid"`
}

type infoResponse struct {
	ReaderName string `json:"readerName"`
	NumSlots   int    `json:"numSlots"`
}

type connectResponse struct {
	ATR string `json:"atr"`
}

type transmitResponse struct {
	Response string `json:"response"`
	Display  string `json:"display"`
}

type readFileResponse struct {
	FID     string `json:"fid"`
	Length  int    `json:"length"`
	Content string `json:"content"`
}

type presence struct {
	Slot     int    `json:"slot"`
	Current  string `json:"current"`
	Previous string `json:"previous"`
	ATR      string `json:"atr,omitempty"`
	Error    string `json:"error,omitempty"`
}

func presenceOf(evt session.PresenceEvent) presence {
	p := presence{
		Slot:     evt.Slot,
		Current:  evt.Current.String(),
		Previous: evt.Previous.String(),
	}
	if len(evt.ATR) > 0 {
		p.ATR = codec.Encode(evt.ATR)
	}
	if evt.Err != nil {
		p.Error = evt.Err.Error()
	}
	return p
}

func (h *Hub) handle(ctx context.Context, req Message) (any, error) {
	h.logger.Debug("request", slog.String("type", req.Type), slog.String("id", req.ID))

	switch req.Type {
	case "info":
		info, err := h.session.Info()
		if err != nil {
			return nil, err
		}
		return infoResponse{ReaderName: info.ReaderName, NumSlots: info.NumSlots}, nil

	case "connect":
		var p slotRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		atr, err := h.session.ConnectToCard(ctx, p.Slot)
		if err != nil {
			return nil, err
		}
		return connectResponse{ATR: codec.Encode(atr)}, nil

	case "transmit":
		var p transmitRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		cmd, err := codec.Decode(p.APDU)
		if err != nil {
			return nil, fmt.Errorf("apdu: %w", err)
		}
		resp, err := h.session.Transmit(ctx, p.Slot, cmd)
		if err != nil {
			return nil, err
		}
		return transmitResponse{Response: codec.Encode(resp), Display: codec.Display(resp)}, nil

	case "readFile":
		var p readFileRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		fid, err := parseFID(p.FID)
		if err != nil {
			return nil, err
		}
		content, err := h.session.ReadFile(ctx, p.Slot, fid)
		if err != nil {
			return nil, err
		}
		return readFileResponse{
			FID:     fmt.Sprintf("%04X", fid),
			Length:  len(content),
			Content: codec.Encode(content),
		}, nil

	case "logs":
		if h.logs == nil {
			return nil, fmt.Errorf("logs: not kept")
		}
		return h.logs.Entries(), nil

	default:
		return nil, fmt.Errorf("unknown message type %q", req.Type)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func parseFID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != 4 {
		return 0, fmt.Errorf("fid %q: want 4 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("fid %q: %w", s, err)
	}
	return uint16(v), nil
}
