package closeapi

import (
	"encoding/json"
	"fmt"
)

// ActivityType maps one custom activity type to the opaque upstream field id
// that holds its outcome value. Resolved once at startup; the sync engine only
// ever sees the typed accessors.
type ActivityType struct {
	Key         string `json:"key"`
	TypeID      string `json:"id"`
	ResultField string `json:"result_field"`
	Name        string `json:"name"`
}

// DefaultActivityTypes is the compiled-in activity type table for the
// production Close organization.
func DefaultActivityTypes() []ActivityType {
	return []ActivityType{
		{Key: "vorqualifizierung", TypeID: "actitype_1H3wPemMNkfkmT0nJuEBUT", ResultField: "cf_xnH96817ih93fVQRG75NuqlCTJCNTkJ0OHCuup2iPLg", Name: "Vorqualifizierung"},
		{Key: "erstgespraech", TypeID: "actitype_6VB2MiuFziQxyuzfMzHy7q", ResultField: "cf_QDWQYVNx3jMp1Pv0SIvzeoDigjMulHFh5qJQwWcesGZ", Name: "Erstgespräch"},
		{Key: "konzeptgespraech", TypeID: "actitype_6ftbHtxSEz9wIwdLnovYP0", ResultField: "cf_XqpdiUMWiYCaw5uW9DRkSiXlOgBrdZtdEf2L8XmjNhT", Name: "Konzeptgespräch"},
		{Key: "umsetzungsgespraech", TypeID: "actitype_6nwTHKNbqf3EbQIjORgPg5", ResultField: "cf_bd4BlLaCpH6uyfldREh1t9MAv7OCRcrZ5CxzJbpUIJf", Name: "Umsetzungsgespräch"},
		{Key: "servicegespraech", TypeID: "actitype_7dOp29fi26OKZQeXd9bCYP", ResultField: "cf_PZvw6SxG2UlSSQNQeDmu63gdMTDP24JG6kfxWB8RXH4", Name: "Servicegespräch"},
	}
}

// ParseActivityTypes decodes a JSON override of the activity type table.
// An empty input returns the defaults.
func ParseActivityTypes(raw string) ([]ActivityType, error) {
	if raw == "" {
		return DefaultActivityTypes(), nil
	}
	var types []ActivityType
	if err := json.Unmarshal([]byte(raw), &types); err != nil {
		return nil, fmt.Errorf("invalid activity type config: %w", err)
	}
	for _, t := range types {
		if t.Key == "" || t.TypeID == "" {
			return nil, fmt.Errorf("activity type config entry missing key or id")
		}
	}
	return types, nil
}

// Lead custom field ids the engine depends on.
const (
	FirstContactFieldID       = "cf_ih8RALRXxBvOZ5cqYnn8uabiMojL37lB7Aa10PN9xMK"
	FirstMeetingDateFieldID   = "cf_2arIU8t0lSdYvqH0AhbRibqtsdNkqgdnUjtLRfFbMvY"
	FirstMeetingResultFieldID = "cf_R6soD8Lk4WLvdfmeFS1UEkiFJyDrZkTkxYAvO6Vy5tV"
)

// Opportunity pipeline stage ids that map to appointment types.
const (
	StageKonzeptGeplant    = "stat_Q9KpLkUvuWy4YJWlZ9kbGhrmxLFJJcnbYcu6sytJhM6"
	StageKonzeptAbsolviert = "stat_w5MA00nWDVYRsJ9TRznGvFr4Nhu80qd0C9C91rdbgnm"
	StageUmsetzungGeplant  = "stat_ktKHblC5HAIZ3sqE6SJVSAJypo6u7c8wIPF6geZuI3F"
	StageUmsetzungWon      = "stat_8HbVPcxbrNePbftAB0XEA3algteiJIioATea2l843sv"
)
