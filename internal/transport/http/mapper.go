package http

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

func filterFromQuery(c *gin.Context) schema.Filter {
	return schema.Filter{
		SenderID:   c.Query(proto.QuerySenderID),
		ReceiverID: c.Query(proto.QueryReceiverID),
	}
}

func parseAfter(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	after, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || after < 0 {
		return 0, fmt.Errorf("invalid %s cursor %q", proto.QueryAfter, raw)
	}
	return after, nil
}

func batchFrame(msgs []schema.Message) proto.Outbound {
	return proto.Outbound{
		Type: proto.FrameTypeBatch,
		Data: proto.BatchData{Changes: schema.AddedBatch(msgs...).Changes},
	}
}

func errorFrame(code, msg string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.FrameTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	}
}
