package messaging

import (
	"github.com/goccy/go-json"

	"github.com/raystack/scale/internal/errors"
)

const typeField = "type"

// Encode renders m as a flat JSON object with its type next to its fields.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, errors.InternalError(EntityMessage, "unable to encode message "+m.Type(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, errors.InternalError(EntityMessage, "message "+m.Type()+" is not a json object", err)
	}
	msgType, err := json.Marshal(m.Type())
	if err != nil {
		return nil, errors.InternalError(EntityMessage, "unable to encode message type", err)
	}
	fields[typeField] = msgType

	return json.Marshal(fields)
}

type envelope struct {
	Type string `json:"type"`
}

// Decode resolves the type of body through the registry and fills a new
// message from it.
func (r *Registry) Decode(body []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.InvalidArgument(EntityMessage, "unable to read message envelope: "+err.Error())
	}

	m, err := r.New(env.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, m); err != nil {
		return nil, errors.InvalidArgument(EntityMessage,
			"unable to decode message "+env.Type+": "+err.Error())
	}
	return m, nil
}
