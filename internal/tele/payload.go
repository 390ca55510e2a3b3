package tele

import (
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
	"github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/internal/selector"
	"google.golang.org/protobuf/types/known/structpb"
)

// Payloads are google.protobuf.Struct, so any protobuf runtime can decode them
// without kiosk specific schema.

const (
	KindError    = "error"
	KindProgress = "progress"
)

func marshalStruct(m map[string]interface{}) ([]byte, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Annotate(err, "struct")
	}
	b, err := proto.Marshal(s)
	return b, errors.Annotate(err, "marshal")
}

func UnmarshalStruct(b []byte) (map[string]interface{}, error) {
	s := new(structpb.Struct)
	if err := proto.Unmarshal(b, s); err != nil {
		return nil, errors.Annotate(err, "unmarshal")
	}
	return s.AsMap(), nil
}

func MarshalCommand(m map[string]interface{}) ([]byte, error) { return marshalStruct(m) }

func statePayload(s selector.State) ([]byte, error) {
	return marshalStruct(map[string]interface{}{
		"source": s.Source.String(),
		"widget": s.Widget,
		"code":   s.Code,
		"seq":    s.Seq,
		"time":   formatTime(s.At),
	})
}

func errorPayload(e error, buildVersion string) ([]byte, error) {
	return marshalStruct(map[string]interface{}{
		"kind":          KindError,
		"message":       e.Error(),
		"build_version": buildVersion,
		"time":          formatTime(time.Now()),
	})
}

// progressPayload omits provider key, it is usually a secret.
func progressPayload(p preload.Progress) ([]byte, error) {
	message := ""
	if len(p.Events) != 0 {
		message = p.Events[len(p.Events)-1].Message
	}
	return marshalStruct(map[string]interface{}{
		"kind":    KindProgress,
		"run_id":  p.RunID,
		"loaded":  p.Loaded,
		"total":   p.Total,
		"errors":  p.Errors(),
		"message": message,
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
