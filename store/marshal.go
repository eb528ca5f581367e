package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/jacentio/espalier/tree"
)

// rootMarker is the constant hash key of the sparse root index; only root
// rows carry the attribute.
const rootMarker = "root"

func nodeKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// marshalNode lays out a node row. Lo and hi go out as DynamoDB numbers,
// which are exact decimals; nothing here ever passes through a float.
func marshalNode(n *tree.Node) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: n.ID},
		"forest_id":  &types.AttributeValueMemberS{Value: n.ForestID},
		"depth":      &types.AttributeValueMemberN{Value: strconv.Itoa(n.Depth)},
		"lo":         &types.AttributeValueMemberN{Value: n.Lo.String()},
		"hi":         &types.AttributeValueMemberN{Value: n.Hi.String()},
		"created_at": &types.AttributeValueMemberS{Value: n.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if n.ParentID != "" {
		item["parent_id"] = &types.AttributeValueMemberS{Value: n.ParentID}
	} else {
		item["root"] = &types.AttributeValueMemberS{Value: rootMarker}
	}
	return item
}

func unmarshalNode(raw map[string]types.AttributeValue) (*tree.Node, error) {
	n := &tree.Node{}

	if v, ok := raw["id"].(*types.AttributeValueMemberS); ok {
		n.ID = v.Value
	}
	if n.ID == "" {
		return nil, fmt.Errorf("espalier: node row has no id")
	}
	if v, ok := raw["parent_id"].(*types.AttributeValueMemberS); ok {
		n.ParentID = v.Value
	}
	if v, ok := raw["forest_id"].(*types.AttributeValueMemberS); ok {
		n.ForestID = v.Value
	}
	if v, ok := raw["depth"].(*types.AttributeValueMemberN); ok {
		d, err := strconv.Atoi(v.Value)
		if err != nil {
			return nil, fmt.Errorf("espalier: node %s: bad depth %q: %w", n.ID, v.Value, err)
		}
		n.Depth = d
	}

	var err error
	if n.Lo, err = decimalAttr(raw, "lo"); err != nil {
		return nil, fmt.Errorf("espalier: node %s: %w", n.ID, err)
	}
	if n.Hi, err = decimalAttr(raw, "hi"); err != nil {
		return nil, fmt.Errorf("espalier: node %s: %w", n.ID, err)
	}

	if v, ok := raw["created_at"].(*types.AttributeValueMemberS); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v.Value); err == nil {
			n.CreatedAt = ts
		}
	}
	return n, nil
}

func decimalAttr(raw map[string]types.AttributeValue, key string) (decimal.Decimal, error) {
	v, ok := raw[key].(*types.AttributeValueMemberN)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("missing number attribute %s", key)
	}
	d, err := decimal.NewFromString(v.Value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad number attribute %s=%q: %w", key, v.Value, err)
	}
	return d, nil
}
