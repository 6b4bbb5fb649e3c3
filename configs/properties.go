package configs

import (
	"strconv"
	"strings"

	"github.com/magiconair/properties"
)

// ParticipantKnobs holds the two Bernoulli probabilities governing a single
// participant.
type ParticipantKnobs struct {
	SendSuccessProb      float64
	OperationSuccessProb float64
}

// DefaultKnobs describes a participant with no simulated failures.
var DefaultKnobs = ParticipantKnobs{SendSuccessProb: 1.0, OperationSuccessProb: 1.0}

// LoadProbabilities reads a .properties file of per-participant knobs. Keys
// are of the form "<participant_id>.send_success_prob" and
// "<participant_id>.operation_success_prob"; a participant listed with only
// one of the two keys takes DefaultKnobs' value for the other, and
// participants absent from the file have no entry in the returned map. This
// is an optional, file-driven
// alternative to the CLI's per-flag probability defaults.
func LoadProbabilities(path string) (map[string]ParticipantKnobs, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, err
	}

	out := map[string]ParticipantKnobs{}
	for _, key := range p.Keys() {
		id, field, ok := splitKnobKey(key)
		if !ok {
			continue
		}
		val, err := strconv.ParseFloat(p.MustGet(key), 64)
		if err != nil {
			return nil, err
		}
		knobs := out[id]
		if knobs == (ParticipantKnobs{}) {
			knobs = DefaultKnobs
		}
		switch field {
		case "send_success_prob":
			knobs.SendSuccessProb = val
		case "operation_success_prob":
			knobs.OperationSuccessProb = val
		default:
			continue
		}
		out[id] = knobs
	}
	return out, nil
}

func splitKnobKey(key string) (id, field string, ok bool) {
	idx := strings.LastIndex(key, ".")
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}
