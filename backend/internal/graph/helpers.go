package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Record and map accessors. Neo4j returns node/edge properties as
// map[string]interface{}; these keep the extraction call sites readable.

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getFloatFromRecord(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func getStringFromMap(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getFloatFromMap(m map[string]interface{}, key string) float64 {
	if val, ok := m[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		}
	}
	return 0
}

func getTimeFromMap(m map[string]interface{}, key string) time.Time {
	if val, ok := m[key]; ok {
		// Neo4j datetime values come back as time.Time
		if t, ok := val.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

func getTimePtrFromMap(m map[string]interface{}, key string) *time.Time {
	if val, ok := m[key]; ok {
		if t, ok := val.(time.Time); ok {
			return &t
		}
	}
	return nil
}

// entityFromProps builds an Entity from a node's property map and labels
func entityFromProps(props map[string]interface{}, labels []string) Entity {
	entityType := EntityType("")
	for _, label := range labels {
		if EntityType(label).IsValid() {
			entityType = EntityType(label)
			break
		}
	}

	name := getStringFromMap(props, "name")
	if name == "" {
		name = getStringFromMap(props, "title")
	}

	e := Entity{
		ID:        getStringFromMap(props, "id"),
		UUID:      getStringFromMap(props, "uuid"),
		Type:      entityType,
		Name:      name,
		Scope:     Scope(getStringFromMap(props, "scope")),
		OwnerID:   getStringFromMap(props, "owner_id"),
		CreatedAt: getTimeFromMap(props, "created_at"),
	}

	reserved := map[string]bool{
		"id": true, "uuid": true, "scope": true, "owner_id": true, "created_at": true,
	}
	for k, v := range props {
		if reserved[k] {
			continue
		}
		if e.Properties == nil {
			e.Properties = make(map[string]interface{})
		}
		e.Properties[k] = v
	}
	return e
}
