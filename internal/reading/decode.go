package reading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// Payload keys. Matching is exact: "SENSOR_ID" or "Time" are unknown keys.
const (
	keySensorID = "sensor_id"
	keyTime     = "time"
	keyTemp     = "temp"
	keyHum      = "hum"
	keyPM1_0    = "pm_1_0"
	keyPM2_5    = "pm_2_5"
	keyPM10_0   = "pm_10_0"
)

// Decode parses a JSON object payload into a Reading.
//
// Absent and null keys stay nil; unknown keys are ignored. Anything that is
// not a valid UTF-8 JSON object yields a *DecodeError carrying the raw
// payload; a named field of the wrong JSON type yields one with Field set.
// sensor_id and time are not checked for emptiness here: the store enforces
// that.
func Decode(payload []byte) (Reading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Reading{}, &DecodeError{Payload: payload, Err: errors.New("not a JSON object")}
	}
	// encoding/json would replace invalid bytes with U+FFFD and alter the key.
	if !utf8.Valid(trimmed) {
		return Reading{}, &DecodeError{Payload: payload, Err: errors.New("invalid UTF-8")}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Reading{}, &DecodeError{Payload: payload, Err: err}
	}

	var (
		r   Reading
		err error
	)
	fail := func(key string, err error) (Reading, error) {
		return Reading{}, &DecodeError{Payload: payload, Field: key, Err: err}
	}

	if r.SensorID, err = field[string](fields, keySensorID); err != nil {
		return fail(keySensorID, err)
	}
	if r.Time, err = field[string](fields, keyTime); err != nil {
		return fail(keyTime, err)
	}
	if r.Temp, err = field[float64](fields, keyTemp); err != nil {
		return fail(keyTemp, err)
	}
	if r.Hum, err = field[float64](fields, keyHum); err != nil {
		return fail(keyHum, err)
	}
	if r.PM1_0, err = integerField(fields, keyPM1_0); err != nil {
		return fail(keyPM1_0, err)
	}
	if r.PM2_5, err = integerField(fields, keyPM2_5); err != nil {
		return fail(keyPM2_5, err)
	}
	if r.PM10_0, err = integerField(fields, keyPM10_0); err != nil {
		return fail(keyPM10_0, err)
	}

	return r, nil
}

// field decodes fields[key] as T. Absent and null yield nil.
func field[T any](fields map[string]json.RawMessage, key string) (*T, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	var v *T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// integerField decodes an integral JSON number without passing through
// float64, so values above 2^53 are kept exact. Integral floats such as 7.0
// are accepted.
func integerField(fields map[string]json.RawMessage, key string) (*int64, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	// json.Number would also accept a quoted number.
	if len(raw) > 0 && raw[0] == '"' {
		return nil, fmt.Errorf("%s is a string, want an integer", raw)
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return nil, err
	}

	if n, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		return &n, nil
	}

	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%s is not an integer", num)
	}
	n := int64(f)
	return &n, nil
}
