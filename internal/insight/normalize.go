package insight

import (
	"github.com/ternarybob/concilio/internal/models"
)

// Normalize converts a raw engine result payload into the engine-agnostic
// form the reconciliation engine fingerprints and applies. Pure function:
// identical input always yields an identical result.
func Normalize(kind models.JobKind, callRef string, raw map[string]interface{}) *models.NormalizedResult {
	result := &models.NormalizedResult{
		Kind:    kind,
		CallRef: callRef,
		Raw:     raw,
	}
	if raw == nil {
		return result
	}

	if transcript, ok := rawString(raw, "transcript"); ok {
		result.Transcript = transcript
	} else if text, ok := rawString(raw, "text"); ok {
		result.Transcript = text
	}

	if scores, ok := raw["scores"].(map[string]interface{}); ok {
		result.Scores = make(map[string]float64, len(scores))
		for name, value := range scores {
			if f, ok := toFloat(value); ok {
				result.Scores[name] = f
			}
		}
	}

	if flags, ok := raw["compliance_flags"].([]interface{}); ok {
		for _, flag := range flags {
			if s, ok := flag.(string); ok {
				result.ComplianceFlags = append(result.ComplianceFlags, s)
			}
		}
	}

	if segments, ok := raw["segments"].([]interface{}); ok {
		for _, item := range segments {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			segment := models.Segment{}
			if speaker, ok := rawString(entry, "speaker"); ok {
				segment.Speaker = speaker
			}
			if start, ok := toFloat(entry["start"]); ok {
				segment.Start = start
			}
			if end, ok := toFloat(entry["end"]); ok {
				segment.End = end
			}
			if text, ok := rawString(entry, "text"); ok {
				segment.Text = text
			}
			result.Segments = append(result.Segments, segment)
		}
	}

	return result
}

func rawString(m map[string]interface{}, key string) (string, bool) {
	value, ok := m[key].(string)
	return value, ok
}

// toFloat handles both float64 and int (JSON numbers decode to float64,
// but hand-built payloads in tests may use int)
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
