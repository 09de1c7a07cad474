package types

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

type ComplaintType string

const (
	ComplaintRecharge ComplaintType = "Recharge Issue"
	ComplaintPayment  ComplaintType = "Payment Issue"
	ComplaintNetwork  ComplaintType = "Network Issue"
	ComplaintOthers   ComplaintType = "Others"
)

// ComplaintTypes lists the categories in report order.
var ComplaintTypes = []ComplaintType{ComplaintRecharge, ComplaintPayment, ComplaintNetwork, ComplaintOthers}

// ParseComplaintType maps free text onto the fixed categories; anything
// unrecognised is Others.
func ParseComplaintType(s string) ComplaintType {
	l := strings.ToLower(strings.TrimSpace(s))
	for _, c := range ComplaintTypes {
		if l == strings.ToLower(string(c)) {
			return c
		}
	}
	switch {
	case strings.Contains(l, "recharge"):
		return ComplaintRecharge
	case strings.Contains(l, "payment"):
		return ComplaintPayment
	case strings.Contains(l, "network"):
		return ComplaintNetwork
	}
	return ComplaintOthers
}

type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

var Sentiments = []Sentiment{SentimentPositive, SentimentNegative, SentimentNeutral}

// ParseSentiment is case-insensitive; unknown values are Neutral.
func ParseSentiment(s string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return SentimentPositive
	case "negative":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// AnalysisResult is the model output decoded once at the extractor boundary.
// Every field is optional; defaults are applied during enrichment.
type AnalysisResult struct {
	Transcript        *Text           `json:"transcript,omitempty"`
	PhoneNumber       *Text           `json:"phone_number,omitempty"`
	ComplaintType     *Text           `json:"complaint_type,omitempty"`
	CustomerSentiment *Text           `json:"customer_sentiment,omitempty"`
	Resolved          Truthy          `json:"resolved"`
	Error             json.RawMessage `json:"error,omitempty"`
}

// HasError reports whether the model flagged its own output as an error.
func (a AnalysisResult) HasError() bool {
	e := strings.TrimSpace(string(a.Error))
	return e != "" && e != "null"
}

// Text is a model-supplied string field. JSON numbers and booleans are kept
// in their literal form; null leaves the field absent.
type Text string

// TextOf returns a pointer to s as Text.
func TextOf(s string) *Text {
	t := Text(s)
	return &t
}

func (t *Text) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null":
		return nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	case raw[0] == '{' || raw[0] == '[':
		return eris.Errorf("types: cannot use %s as text", raw)
	default:
		*t = Text(raw)
		return nil
	}
}

// Ptr returns the value as *string; nil stays nil.
func (t *Text) Ptr() *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

// Value returns the text, or "" when absent.
func (t *Text) Value() string {
	if t == nil {
		return ""
	}
	return string(*t)
}

// Truthy holds a raw JSON value that is coerced to bool on demand.
type Truthy struct {
	raw json.RawMessage
}

func (t *Truthy) UnmarshalJSON(b []byte) error {
	t.raw = append(t.raw[:0], b...)
	return nil
}

func (t Truthy) MarshalJSON() ([]byte, error) {
	if len(t.raw) == 0 {
		return []byte("null"), nil
	}
	return t.raw, nil
}

// TruthyOf builds a Truthy from a Go value, mainly for tests and the confirm flow.
func TruthyOf(v any) Truthy {
	b, err := json.Marshal(v)
	if err != nil {
		return Truthy{}
	}
	return Truthy{raw: b}
}

// Bool coerces the value: JSON booleans as-is, strings via strconv.ParseBool
// (plus yes/no), numbers by non-zero. Everything else, including absent, is false.
func (t Truthy) Bool() bool {
	if len(t.raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(t.raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if s == "yes" || s == "y" {
			return true
		}
		b, err := strconv.ParseBool(s)
		return err == nil && b
	default:
		return false
	}
}

// CallRecord is the canonical extracted entity.
type CallRecord struct {
	CustomerID        string        `json:"customer_id"`
	PhoneNumber       *string       `json:"phone_number"`
	Transcript        string        `json:"transcript"`
	ComplaintType     ComplaintType `json:"complaint_type"`
	CustomerSentiment Sentiment     `json:"customer_sentiment"`
	Resolved          bool          `json:"resolved"`
	ProcessingTimeSec float64       `json:"processing_time_sec,omitempty"`
}

// Row returns the six persisted columns.
func (r CallRecord) Row() WarehouseRow {
	return WarehouseRow{
		CustomerID:        r.CustomerID,
		PhoneNumber:       r.PhoneNumber,
		Transcript:        r.Transcript,
		ComplaintType:     r.ComplaintType,
		CustomerSentiment: r.CustomerSentiment,
		Resolved:          r.Resolved,
	}
}

// WarehouseRow is exactly what reaches the warehouse.
type WarehouseRow struct {
	CustomerID        string        `json:"customer_id"`
	PhoneNumber       *string       `json:"phone_number"`
	Transcript        string        `json:"transcript"`
	ComplaintType     ComplaintType `json:"complaint_type"`
	CustomerSentiment Sentiment     `json:"customer_sentiment"`
	Resolved          bool          `json:"resolved"`
}

// Columns is the fixed warehouse schema, in insert order.
var Columns = []string{"customer_id", "phone_number", "transcript", "complaint_type", "customer_sentiment", "resolved"}

// Values returns the row in Columns order; an absent phone is nil.
func (w WarehouseRow) Values() []any {
	var phone any
	if w.PhoneNumber != nil {
		phone = *w.PhoneNumber
	}
	return []any{w.CustomerID, phone, w.Transcript, string(w.ComplaintType), string(w.CustomerSentiment), w.Resolved}
}
