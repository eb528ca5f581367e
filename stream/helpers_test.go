package stream

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

// --- getStringAttr Tests ---

func TestGetStringAttr_ExistingString(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"forest_id": events.NewStringAttribute("node-r"),
	}

	result := getStringAttr(image, "forest_id")
	if result != "node-r" {
		t.Errorf("expected 'node-r', got %q", result)
	}
}

func TestGetStringAttr_MissingKey(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"other": events.NewStringAttribute("value"),
	}

	result := getStringAttr(image, "forest_id")
	if result != "" {
		t.Errorf("expected empty string for missing key, got %q", result)
	}
}

func TestGetStringAttr_NilImage(t *testing.T) {
	var image map[string]events.DynamoDBAttributeValue

	result := getStringAttr(image, "forest_id")
	if result != "" {
		t.Errorf("expected empty string for nil image, got %q", result)
	}
}

// --- getNumberAttr Tests ---

func TestGetNumberAttr_ValidNumber(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"deleting": events.NewNumberAttribute("1756600000"),
	}

	result := getNumberAttr(image, "deleting")
	if result != 1756600000 {
		t.Errorf("expected 1756600000, got %d", result)
	}
}

func TestGetNumberAttr_MissingKey(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{}

	result := getNumberAttr(image, "deleting")
	if result != 0 {
		t.Errorf("expected 0 for missing key, got %d", result)
	}
}

func TestGetNumberAttr_WrongType(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"deleting": events.NewStringAttribute("1756600000"),
	}

	result := getNumberAttr(image, "deleting")
	if result != 0 {
		t.Errorf("expected 0 for string attribute, got %d", result)
	}
}

func TestGetNumberAttr_Unparseable(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"deleting": events.NewNumberAttribute("not-a-number"),
	}

	result := getNumberAttr(image, "deleting")
	if result != 0 {
		t.Errorf("expected 0 for unparseable number, got %d", result)
	}
}

// --- getDecimalAttr Tests ---

func TestGetDecimalAttr_ValidDecimal(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"lo": events.NewNumberAttribute("0.33333333333333333333"),
	}

	result, err := getDecimalAttr(image, "lo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.String() != "0.33333333333333333333" {
		t.Errorf("lost precision: got %s", result)
	}
}

func TestGetDecimalAttr_MissingKey(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{}

	if _, err := getDecimalAttr(image, "lo"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestGetDecimalAttr_WrongType(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"lo": events.NewStringAttribute("0.5"),
	}

	if _, err := getDecimalAttr(image, "lo"); err == nil {
		t.Error("expected error for string attribute")
	}
}

func TestGetDecimalAttr_Unparseable(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"lo": events.NewNumberAttribute("0.5.5"),
	}

	if _, err := getDecimalAttr(image, "lo"); err == nil {
		t.Error("expected error for unparseable number")
	}
}
